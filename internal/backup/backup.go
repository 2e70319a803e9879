// Package backup mirrors the current ledger, encrypted, to S3-compatible
// storage and restores it from there.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/store"
)

// ObjectName is appended to the configured prefix to form the object key.
const ObjectName = "ledger.json.enc"

const finalUploadTimeout = 30 * time.Second

// ErrDisabled is returned when bucket or passphrase is not configured.
var ErrDisabled = errors.New("backup not configured")

// s3Client is the subset of *s3.Client the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source hands out ledger snapshots. *ledger.Engine implements it.
type Source interface {
	Snapshot() model.Ledger
}

type Config struct {
	Endpoint   string
	Bucket     string
	Prefix     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Interval   time.Duration
}

func (c Config) Enabled() bool {
	return c.Bucket != "" && c.Passphrase != ""
}

// Key is the object key the snapshot is stored under.
func (c Config) Key() string {
	return c.Prefix + ObjectName
}

type State string

const (
	StateIdle     State = "idle"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastUpload *time.Time `json:"last_upload,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager uploads the ledger whenever it has changed since the last upload.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	client   s3Client
	source   Source
	lastHash [sha256.Size]byte
	status   Status
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, source Source, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		source: source,
		logger: logger,
		status: Status{State: StateDisabled},
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: true,
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start uploads on every interval tick. It does nothing when disabled. A
// last upload is attempted after ctx is cancelled so the newest week's
// state leaves the machine before shutdown.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.client == nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), finalUploadTimeout)
				m.syncAndLog(finalCtx)
				cancel()
				return
			case <-ticker.C:
				m.syncAndLog(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the final upload.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) syncAndLog(ctx context.Context) {
	uploaded, err := m.Sync(ctx)
	if err != nil {
		m.logger.Error("upload ledger snapshot", "error", err)
		return
	}
	if uploaded {
		m.logger.Info("ledger snapshot uploaded", "key", m.cfg.Key())
	}
}

// Sync uploads the current snapshot if it differs from the last one
// uploaded. It reports whether an upload happened.
func (m *Manager) Sync(ctx context.Context) (bool, error) {
	m.mu.RLock()
	client := m.client
	last := m.lastHash
	m.mu.RUnlock()
	if client == nil {
		return false, ErrDisabled
	}

	plaintext, err := store.EncodeLedger(m.source.Snapshot())
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	hash := sha256.Sum256(plaintext)
	if hash == last {
		return false, nil
	}

	blob, err := Encrypt(plaintext, m.cfg.Passphrase)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return false, fmt.Errorf("encrypt snapshot: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(m.cfg.Key()),
		Body:          bytes.NewReader(blob),
		ContentLength: aws.Int64(int64(len(blob))),
	})
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return false, fmt.Errorf("upload to s3: %w", err)
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.lastHash = hash
	m.status = Status{State: StateIdle, LastUpload: &now}
	m.mu.Unlock()
	return true, nil
}

// Fetch downloads and decrypts the mirrored ledger. It is validated but not
// written anywhere; the caller decides what to do with it.
func (m *Manager) Fetch(ctx context.Context) (model.Ledger, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return model.Ledger{}, ErrDisabled
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(m.cfg.Key()),
	})
	if err != nil {
		return model.Ledger{}, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	blob, err := io.ReadAll(result.Body)
	if err != nil {
		return model.Ledger{}, fmt.Errorf("read snapshot: %w", err)
	}
	plaintext, err := Decrypt(blob, m.cfg.Passphrase)
	if err != nil {
		return model.Ledger{}, err
	}
	l, err := store.DecodeLedger(plaintext)
	if err != nil {
		return model.Ledger{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return l, nil
}

// Saver persists a ledger. *store.LedgerStore implements it.
type Saver interface {
	Save(ctx context.Context, l model.Ledger) error
}

// Restore fetches the mirrored ledger and saves it locally. Run it only
// while the bot is stopped.
func (m *Manager) Restore(ctx context.Context, dst Saver) (model.Ledger, error) {
	l, err := m.Fetch(ctx)
	if err != nil {
		return model.Ledger{}, err
	}
	if err := dst.Save(ctx, l); err != nil {
		return model.Ledger{}, fmt.Errorf("save restored ledger: %w", err)
	}
	return l, nil
}
