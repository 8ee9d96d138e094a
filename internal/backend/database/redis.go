package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jo-hoe/gopicture/internal/picture"
	"github.com/redis/go-redis/v9"
)

const (
	pictureKeyPrefix = "picture:"
	pictureIndexKey  = "pictures"
)

// The record and its index entry are written by one script so they change together.
var (
	createPictureScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX") then
	redis.call("SADD", KEYS[2], ARGV[2])
	return 1
end
return 0`)

	replacePictureScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "XX") then
	redis.call("SADD", KEYS[2], ARGV[2])
	return 1
end
return 0`)

	deletePictureScript = redis.NewScript(`
local deleted = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return deleted`)
)

type redisRecord struct {
	Name      string `json:"name"`
	Ext       string `json:"ext"`
	MimeType  string `json:"mime_type"`
	Source    []byte `json:"source"`
	Thumb     []byte `json:"thumb"`
	Default   []byte `json:"default"`
	Caption   string `json:"caption"`
	UpdatedAt int64  `json:"updated_at"`
}

type RedisDatabase struct {
	client *redis.Client
}

// NewRedisDatabase connects using a redis:// URL.
func NewRedisDatabase(connectionString string) (DatabaseService, error) {
	options, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	return NewRedisDatabaseWithClient(redis.NewClient(options)), nil
}

func NewRedisDatabaseWithClient(client *redis.Client) *RedisDatabase {
	return &RedisDatabase{client: client}
}

func (s *RedisDatabase) CreateDatabase() error {
	return s.client.Ping(context.Background()).Err()
}

func (s *RedisDatabase) DoesDatabaseExist() bool {
	return s.client.Ping(context.Background()).Err() == nil
}

func (s *RedisDatabase) Close() error {
	return s.client.Close()
}

func (s *RedisDatabase) CreatePicture(ctx context.Context, p *picture.Picture) error {
	return s.writePicture(ctx, createPictureScript, p, ErrExists)
}

func (s *RedisDatabase) ReplacePicture(ctx context.Context, p *picture.Picture) error {
	return s.writePicture(ctx, replacePictureScript, p, ErrNotFound)
}

func (s *RedisDatabase) writePicture(ctx context.Context, script *redis.Script, p *picture.Picture, conflictErr error) error {
	data, err := json.Marshal(toRedisRecord(p))
	if err != nil {
		return fmt.Errorf("failed to encode picture %s: %w", p.Filename(), err)
	}
	written, err := script.Run(ctx, s.client,
		[]string{pictureKey(p.Name, p.Ext), pictureIndexKey},
		data, p.Filename()).Int()
	if err != nil {
		return fmt.Errorf("failed to write picture %s: %w", p.Filename(), err)
	}
	if written == 0 {
		return conflictErr
	}
	return nil
}

func (s *RedisDatabase) GetPicture(ctx context.Context, name, ext string) (*picture.Picture, error) {
	data, err := s.client.Get(ctx, pictureKey(name, ext)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRedisRecord(data)
}

func (s *RedisDatabase) GetPictureByName(ctx context.Context, name string) (*picture.Picture, error) {
	keys := []string{pictureKey(name, "jpg"), pictureKey(name, "png"), pictureKey(name, "gif")}
	pictures, err := s.getMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(pictures) == 0 {
		return nil, ErrNotFound
	}
	latest := pictures[0]
	for _, p := range pictures[1:] {
		if p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
		}
	}
	return latest, nil
}

func (s *RedisDatabase) GetPictures(ctx context.Context) ([]*picture.Picture, error) {
	filenames, err := s.client.SMembers(ctx, pictureIndexKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(filenames)

	keys := make([]string, len(filenames))
	for i, filename := range filenames {
		keys[i] = pictureKeyPrefix + filename
	}
	return s.getMany(ctx, keys)
}

func (s *RedisDatabase) DeletePicture(ctx context.Context, name, ext string) error {
	deleted, err := deletePictureScript.Run(ctx, s.client,
		[]string{pictureKey(name, ext), pictureIndexKey},
		name+"."+ext).Int()
	if err != nil {
		return fmt.Errorf("failed to delete picture %s.%s: %w", name, ext, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// getMany loads the given keys, skipping keys that hold no picture.
func (s *RedisDatabase) getMany(ctx context.Context, keys []string) ([]*picture.Picture, error) {
	pictures := make([]*picture.Picture, 0, len(keys))
	if len(keys) == 0 {
		return pictures, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			continue
		}
		p, err := decodeRedisRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		pictures = append(pictures, p)
	}
	return pictures, nil
}

func pictureKey(name, ext string) string {
	return pictureKeyPrefix + name + "." + ext
}

func toRedisRecord(p *picture.Picture) redisRecord {
	return redisRecord{
		Name:      p.Name,
		Ext:       p.Ext,
		MimeType:  p.MimeType,
		Source:    p.Source,
		Thumb:     p.Thumb,
		Default:   p.Default,
		Caption:   p.Caption,
		UpdatedAt: p.UpdatedAt.UnixNano(),
	}
}

func decodeRedisRecord(data []byte) (*picture.Picture, error) {
	var record redisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode picture record: %w", err)
	}
	return &picture.Picture{
		Name:      record.Name,
		Ext:       record.Ext,
		MimeType:  record.MimeType,
		Source:    record.Source,
		Thumb:     record.Thumb,
		Default:   record.Default,
		Caption:   record.Caption,
		UpdatedAt: time.Unix(0, record.UpdatedAt).UTC(),
	}, nil
}
