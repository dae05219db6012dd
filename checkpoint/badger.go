package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/mitchellh/go-homedir"
)

var latestKey = []byte("checkpoint/latest")

func stepKey(step int) []byte {
	return []byte(fmt.Sprintf("checkpoint/step/%010d", step))
}

// BadgerStore keeps every saved snapshot keyed by step, plus a pointer to the
// most recent one.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens the store in dir, "~" is expanded. An empty dir gives an
// in-memory store.
func OpenBadger(dir string, logger *slog.Logger) (bs *BadgerStore, err error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if dir, err = homedir.Expand(dir); err != nil {
			return nil, fmt.Errorf("expand checkpoint dir: %w", err)
		}
		if err = os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func (bs *BadgerStore) Save(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	err = bs.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(stepKey(s.Step), data); err != nil {
			return err
		}
		return txn.Set(latestKey, []byte(strconv.Itoa(s.Step)))
	})
	if err != nil {
		return fmt.Errorf("save checkpoint step %d: %w", s.Step, err)
	}
	if bs.logger != nil {
		bs.logger.Info("checkpoint saved",
			slog.Int("step", s.Step),
			slog.Float64("time", s.Time),
			slog.Int("bytes", len(data)))
	}
	return nil
}

func (bs *BadgerStore) Load(ctx context.Context) (*Snapshot, error) {
	var step int
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		step, err = strconv.Atoi(string(val))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("read latest checkpoint: %w", err)
	}
	return bs.LoadStep(ctx, step)
}

func (bs *BadgerStore) LoadStep(ctx context.Context, step int) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stepKey(step))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: step %d", ErrNoCheckpoint, step)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint step %d: %w", step, err)
	}
	return Decode(data)
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

// badgerLogger adapts slog.Logger to the badger Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
