package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-stack/pkg/manifest"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
)

// maxBody bounds how much of a request body a handler buffers.
const maxBody = 4 << 20

var errNotHTTP = errors.New("core: dispatch carries no http request/response")

func httpOf(c *stack.Context) (*http.Request, http.ResponseWriter, error) {
	r, ok := c.Request.(*http.Request)
	if !ok || r == nil {
		return nil, nil, errNotHTTP
	}
	w, ok := c.Response.(http.ResponseWriter)
	if !ok || w == nil {
		return nil, nil, errNotHTTP
	}
	return r, w, nil
}

// readBody drains r.Body and puts a fresh reader back so later turns can
// read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// inprocBody adapts a registered InprocHandler to a stack body. It ends the
// chain on success and punts a StatusError otherwise.
func inprocBody(h InprocHandler) stack.HandlerFunc {
	return func(c *stack.Context, next stack.Next) error {
		r, w, err := httpOf(c)
		if err != nil {
			return err
		}
		in, err := readBody(r)
		if err != nil {
			return &StatusError{Status: http.StatusBadRequest, Err: err}
		}
		out, status, err := h(withParams(r.Context(), c.Params), in)
		if err != nil {
			return &StatusError{Status: status, Err: err}
		}
		writeJSON(w, out, statusIf(status, http.StatusOK))
		return nil
	}
}

func staticBody(spec manifest.HSpec) stack.HandlerFunc {
	status := statusIf(spec.Status, http.StatusOK)
	ct := spec.ContentType
	if ct == "" {
		ct = "application/json"
	}
	body := []byte(spec.Body)
	return func(c *stack.Context, next stack.Next) error {
		_, w, err := httpOf(c)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(status)
		if len(body) > 0 {
			_, _ = w.Write(body)
		}
		return nil
	}
}

func relayHeaders(r *http.Request, c *stack.Context) map[string]string {
	hdr := map[string]string{
		"x-method": c.Method,
		"x-url":    c.OriginalURL,
	}
	if id := chimd.GetReqID(r.Context()); id != "" {
		hdr["x-request-id"] = id
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		hdr["content-type"] = ct
	}
	return hdr
}

func relayPublishBody(rel RelayClient, spec manifest.RelaySpec) stack.HandlerFunc {
	return func(c *stack.Context, next stack.Next) error {
		r, w, err := httpOf(c)
		if err != nil {
			return err
		}
		in, err := readBody(r)
		if err != nil {
			return &StatusError{Status: http.StatusBadRequest, Err: err}
		}
		if err := rel.Publish(r.Context(), RelayRequest{
			Topic:   spec.Topic,
			Body:    in,
			Headers: relayHeaders(r, c),
		}); err != nil {
			return fmt.Errorf("relay publish %s: %w", spec.Topic, err)
		}
		writeJSON(w, []byte(`{"status":"accepted"}`), http.StatusAccepted)
		return nil
	}
}

func relayRequestBody(rel RelayClient, spec manifest.RelaySpec) stack.HandlerFunc {
	deadline := time.Duration(spec.DeadlineMS) * time.Millisecond
	return func(c *stack.Context, next stack.Next) error {
		r, w, err := httpOf(c)
		if err != nil {
			return err
		}
		in, err := readBody(r)
		if err != nil {
			return &StatusError{Status: http.StatusBadRequest, Err: err}
		}
		ctx := r.Context()
		if deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deadline)
			defer cancel()
		}
		out, err := rel.Request(ctx, RelayRequest{
			Topic:   spec.Topic,
			Body:    in,
			Headers: relayHeaders(r, c),
			Timeout: deadline,
		})
		if err != nil {
			return fmt.Errorf("relay request %s: %w", spec.Topic, err)
		}
		writeJSON(w, out, http.StatusOK)
		return nil
	}
}

// errorBody renders the pending error and ends the chain.
func errorBody(err error, c *stack.Context, next stack.Next) error {
	r, w, herr := httpOf(c)
	if herr != nil {
		return next(err)
	}
	WriteError(w, r, err)
	return nil
}

// timeoutHandler bounds the rest of the dispatch with a deadline on the
// request context.
func timeoutHandler(d time.Duration) stack.HandlerFunc {
	return func(c *stack.Context, next stack.Next) error {
		r, ok := c.Request.(*http.Request)
		if !ok || r == nil {
			return next(nil)
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		c.Request = r.WithContext(ctx)
		go func() {
			select {
			case <-c.Done():
			case <-ctx.Done():
			}
			cancel()
		}()
		return next(nil)
	}
}
