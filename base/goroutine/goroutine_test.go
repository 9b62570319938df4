package goroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x-xyz/listingengine/base/ctx"
)

func TestGoReportsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	<-Go(ctx.Background(), "job", errCh, func() error {
		return errors.New("boom")
	})
	require.EqualError(t, <-errCh, "boom")
}

func TestGoRecoversPanics(t *testing.T) {
	req := require.New(t)
	errCh := make(chan error, 1)
	<-Go(ctx.Background(), "subscriber", errCh, func() error {
		panic("nil map")
	})
	err := <-errCh
	var p *PanicError
	req.True(errors.As(err, &p))
	req.Equal("subscriber", p.Name)
	req.Equal("nil map", p.Value)
	req.NotEmpty(p.Stack)
}

func TestGoStaysQuietOnSuccess(t *testing.T) {
	errCh := make(chan error, 1)
	<-Go(ctx.Background(), "job", errCh, func() error { return nil })
	require.Len(t, errCh, 0)
}

func TestRun(t *testing.T) {
	require.NoError(t, Run(ctx.Background(), "ok", func() error { return nil }))
	require.Error(t, Run(ctx.Background(), "bad", func() error { panic(1) }))
}
