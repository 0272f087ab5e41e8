package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
	tokenConsumeRetries  = 4
)

var (
	ErrTokenStoreUnavailable = errors.New("token store unavailable")
	ErrTokenRecordCorrupt    = errors.New("invalid token record")
	ErrTokenWindowInvalid    = errors.New("token expiry must be after creation")
)

type TokenRecord struct {
	Digest    [32]byte
	CreatedAt int64
	ExpiresAt int64
	Consumed  bool
}

// Live reports whether the record can still be redeemed at now.
func (r *TokenRecord) Live(now time.Time) bool {
	return !r.Consumed && now.UnixMilli() < r.ExpiresAt
}

type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "otk"
	}
	return &TokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TokenStore) key(purpose, accountID string) string {
	return s.prefix + ":" + purpose + ":" + accountID
}

// Replace writes a fresh record for (purpose, accountID). A single SET swaps
// out whatever was there, so no reader can observe the old and new codes as
// both live.
func (s *TokenStore) Replace(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	createdAt, expiresAt time.Time,
) error {
	ttl := expiresAt.Sub(createdAt)
	if ttl <= 0 {
		return ErrTokenWindowInvalid
	}

	encoded, err := encodeTokenRecord(&TokenRecord{
		Digest:    digest,
		CreatedAt: createdAt.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(purpose, accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	return nil
}

// Consume flips the record to consumed when digest matches and the record is
// live at now. Every other outcome is (false, nil).
func (s *TokenStore) Consume(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	now time.Time,
) (bool, error) {
	key := s.key(purpose, accountID)

	for i := 0; i < tokenConsumeRetries; i++ {
		redeemed := false

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			if record.Consumed {
				return nil
			}

			if now.UnixMilli() >= record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			if subtle.ConstantTimeCompare(record.Digest[:], digest[:]) != 1 {
				return nil
			}

			record.Consumed = true
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			redeemed = true
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return false, nil
			case errors.Is(err, ErrTokenRecordCorrupt):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
			}
		}

		return redeemed, nil
	}

	return false, nil
}

func (s *TokenStore) Get(ctx context.Context, accountID, purpose string) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(purpose, accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	return decodeTokenRecord(data)
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 1 + 8 + 8 + len(record.Digest))

	buf.WriteByte(tokenRecordVersionV1)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.Digest[:])

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != tokenRecordVersionV1 {
		return nil, ErrTokenRecordCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil || flags > 1 {
		return nil, ErrTokenRecordCorrupt
	}

	record := &TokenRecord{Consumed: flags == 1}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, ErrTokenRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, ErrTokenRecordCorrupt
	}
	if _, err := io.ReadFull(reader, record.Digest[:]); err != nil {
		return nil, ErrTokenRecordCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrTokenRecordCorrupt
	}

	return record, nil
}
