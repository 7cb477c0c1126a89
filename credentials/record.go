package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// User is the identity persisted alongside the token. It deliberately has no
// admin flag or contact details: only id, name and role are cached.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Record is a cached login.
type Record struct {
	Token     string
	User      User
	Timestamp time.Time
}

// wireRecord is the stored JSON shape:
// {"token":..., "user":{"id","name","role"}, "timestamp": epoch millis}.
type wireRecord struct {
	Token     string    `json:"token"`
	User      *wireUser `json:"user"`
	Timestamp *int64    `json:"timestamp"`
}

type wireUser struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
	Role *string `json:"role"`
}

// EncodeRecord serializes r to the stored JSON form.
func EncodeRecord(r Record) ([]byte, error) {
	millis := r.Timestamp.UnixMilli()
	return json.Marshal(wireRecord{
		Token:     r.Token,
		User:      &wireUser{ID: r.User.ID, Name: &r.User.Name, Role: &r.User.Role},
		Timestamp: &millis,
	})
}

// DecodeRecord parses a stored value. Anything that does not match the
// schema exactly, including unknown fields and trailing data, yields a
// *MalformedRecordError.
func DecodeRecord(data []byte) (*Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var wire wireRecord
	if err := decoder.Decode(&wire); err != nil {
		return nil, &MalformedRecordError{Err: err}
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &MalformedRecordError{Err: errors.New("trailing data after record")}
	}

	switch {
	case wire.Token == "":
		return nil, &MalformedRecordError{Err: errors.New("missing token")}
	case wire.User == nil:
		return nil, &MalformedRecordError{Err: errors.New("missing user")}
	case wire.User.ID == "":
		return nil, &MalformedRecordError{Err: errors.New("missing user id")}
	case wire.User.Name == nil:
		return nil, &MalformedRecordError{Err: errors.New("missing user name")}
	case wire.User.Role == nil:
		return nil, &MalformedRecordError{Err: errors.New("missing user role")}
	case wire.Timestamp == nil:
		return nil, &MalformedRecordError{Err: errors.New("missing timestamp")}
	case *wire.Timestamp <= 0:
		return nil, &MalformedRecordError{Err: fmt.Errorf("invalid timestamp %d", *wire.Timestamp)}
	}

	return &Record{
		Token:     wire.Token,
		User:      User{ID: wire.User.ID, Name: *wire.User.Name, Role: *wire.User.Role},
		Timestamp: time.UnixMilli(*wire.Timestamp),
	}, nil
}
