package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNoTransport indicates none of the configured transports exist on the host.
	ErrNoTransport = errors.New("no download tool available")

	// ErrFetchFailed indicates every attempt to fetch a resource failed.
	ErrFetchFailed = errors.New("download failed")
)

// DefaultRetryDelay is the fixed pause between attempts on the primary transport.
const DefaultRetryDelay = 2 * time.Second

// Fetcher downloads resources over the first available Transport. Only the
// primary (first configured) transport is retried; retries use a fixed
// delay, never exponential growth.
type Fetcher struct {
	transports []Transport
	retries    int
	delay      time.Duration
}

// NewFetcher returns a Fetcher over transports in priority order.
func NewFetcher(transports []Transport, retries int, delay time.Duration) *Fetcher {
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{transports: transports, retries: retries, delay: delay}
}

// NewFetcherFromNames builds a Fetcher from TRANSPORTS setting entries.
func NewFetcherFromNames(names []string, retries int) (*Fetcher, error) {
	transports := make([]Transport, 0, len(names))
	for _, name := range names {
		tr, err := TransportByName(name)
		if err != nil {
			return nil, err
		}
		transports = append(transports, tr)
	}
	return NewFetcher(transports, retries, DefaultRetryDelay), nil
}

// Select returns the first available transport and whether it is the
// primary one.
func (f *Fetcher) Select() (Transport, bool, error) {
	for i, tr := range f.transports {
		if tr.Available() {
			return tr, i == 0, nil
		}
	}
	names := make([]string, 0, len(f.transports))
	for _, tr := range f.transports {
		names = append(names, tr.Name())
	}
	return nil, false, fmt.Errorf("%w: install one of %v", ErrNoTransport, names)
}

// Download fetches url into dest, replacing any existing content. A failed
// download does not leave a partial file behind.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	err := f.do(ctx, url, func() (io.Writer, func() error, error) {
		file, err := os.Create(dest)
		if err != nil {
			return nil, nil, backoff.Permanent(fmt.Errorf("creating %s: %w", dest, err))
		}
		return file, file.Close, nil
	})
	if err != nil {
		os.Remove(dest)
	}
	return err
}

// Get fetches url and returns the body.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	err := f.do(ctx, url, func() (io.Writer, func() error, error) {
		buf.Reset()
		return &buf, func() error { return nil }, nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// do runs one fetch per attempt. open is called before every attempt so
// each one starts from an empty destination.
func (f *Fetcher) do(ctx context.Context, url string, open func() (io.Writer, func() error, error)) error {
	tr, primary, err := f.Select()
	if err != nil {
		return err
	}

	retries := 0
	if primary {
		retries = f.retries
	}

	attempts := 0
	op := func() error {
		attempts++
		w, closeFn, err := open()
		if err != nil {
			return err
		}
		fetchErr := tr.Fetch(ctx, url, w)
		closeErr := closeFn()
		if fetchErr != nil {
			return fetchErr
		}
		if closeErr != nil {
			return backoff.Permanent(closeErr)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(f.delay), uint64(retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("%w: %s via %s after %d attempt(s): %w", ErrFetchFailed, url, tr.Name(), attempts, err)
	}
	return nil
}
