package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionCurrent = 1

// Mutable fields sit at fixed offsets ahead of the variable-length tail so
// server-side scripts can patch them without reparsing the whole blob.
//
//	[0]      version
//	[1]      active flag
//	[2:10]   revokedAt  (unix, big endian)
//	[10:18]  lastUsed   (unix, big endian)
//	[18:26]  createdAt  (unix, big endian)
//	[26:34]  expiresAt  (unix, big endian)
//	[34:66]  refresh hash
//	tail     length-prefixed: id, principalID, device, ip, userAgent
const (
	offActive    = 1
	offRevokedAt = 2
	offLastUsed  = 10
	offCreatedAt = 18
	offExpiresAt = 26
	offHash      = 34
	fixedHeadLen = 66
)

// Encode serializes a [Record] into the versioned binary layout.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionCurrent)

	if r.Active {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	for _, v := range []int64{r.RevokedAt, r.LastUsed, r.CreatedAt, r.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	buf.Write(r.RefreshHash[:])

	for _, s := range []string{r.ID, r.PrincipalID, r.Device, r.IP, r.UserAgent} {
		if len(s) > 255 {
			return nil, errors.New("record field too long")
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Unknown versions are rejected.
func Decode(data []byte) (*Record, error) {
	if len(data) < fixedHeadLen {
		return nil, errors.New("record blob truncated")
	}

	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid record version")
	}

	r := &Record{}

	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Active = active == 1

	for _, dst := range []*int64{&r.RevokedAt, &r.LastUsed, &r.CreatedAt, &r.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(reader, r.RefreshHash[:]); err != nil {
		return nil, err
	}

	for _, dst := range []*string{&r.ID, &r.PrincipalID, &r.Device, &r.IP, &r.UserAgent} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*dst = string(field)
	}

	return r, nil
}
