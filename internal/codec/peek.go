package codec

import "time"

// Header is the non-secret metadata of an encoded envelope.
type Header struct {
	FormatVersion uint8     `json:"format_version"`
	Version       uint8     `json:"version"`
	Suite         uint8     `json:"suite"`
	MessageID     string    `json:"message_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	CipherLen     int       `json:"ciphertext_len"`
}

// Peek reads the metadata of an encoded envelope without exposing the
// ciphertext, e.g. to start a countdown before the message is opened.
func Peek(data []byte) (Header, error) {
	env, err := Decode(data)
	if err != nil {
		return Header{}, err
	}
	return Header{
		FormatVersion: FormatVersion,
		Version:       env.Version,
		Suite:         env.Suite,
		MessageID:     env.MessageID,
		CreatedAt:     env.CreatedAt,
		ExpiresAt:     env.ExpiresAt,
		CipherLen:     len(env.Ciphertext),
	}, nil
}
