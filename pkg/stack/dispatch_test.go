package stack_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatch_RunsMatchingHandlersInOrder(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Push("/a", record(&log, "a"), stack.Name("a"))
	require.NoError(t, err)
	_, err = s.Use(record(&log, "root"))
	require.NoError(t, err)
	_, err = s.Push("/b", record(&log, "b"), stack.Name("b"))
	require.NoError(t, err)

	var doneErr error
	doneCalls := 0
	c, err := s.Dispatch("/a/", stack.WithOnDone(func(c *stack.Context, err error) error {
		doneCalls++
		doneErr = err
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "root"}, log)
	require.Equal(t, 1, doneCalls)
	require.NoError(t, doneErr)
	require.True(t, c.Handled())
	require.Equal(t, "/a", c.OriginalURL)

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestDispatch_NothingMatches(t *testing.T) {
	s := stack.New()
	_, err := s.Push("/a", record(new([]string), "a"))
	require.NoError(t, err)

	called := false
	c, err := s.Dispatch("/zzz", stack.WithOnDone(func(*stack.Context, error) error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	require.True(t, called)
	require.False(t, c.Handled())
}

func TestDispatch_MethodFilter(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Push("/form", record(&log, "post"), stack.Method("post"), stack.Name("post"))
	require.NoError(t, err)

	for _, m := range []string{"POST", "post", "Post"} {
		log = nil
		c, err := s.Dispatch("/form", stack.WithMethod(m))
		require.NoError(t, err)
		require.Equal(t, []string{"post"}, log, m)
		require.Equal(t, "POST", c.Method)
	}

	log = nil
	_, err = s.Dispatch("/form", stack.WithMethod("GET"))
	require.NoError(t, err)
	require.Empty(t, log)
}

func TestDispatch_MountRewritesURL(t *testing.T) {
	s := stack.New()
	type seen struct{ URL, Original string }
	var got []seen
	capture := func(c *stack.Context, next stack.Next) error {
		got = append(got, seen{c.URL, c.OriginalURL})
		return next(nil)
	}

	_, err := s.Push("/api", capture, stack.Mount(true), stack.Name("api"))
	require.NoError(t, err)
	_, err = s.Push("/api/users/:id", capture, stack.Name("user"))
	require.NoError(t, err)
	_, err = s.Use(capture)
	require.NoError(t, err)

	c, err := s.Dispatch("/api/users/7")
	require.NoError(t, err)
	want := []seen{
		{"/users/7", "/api/users/7"},
		{"/api/users/7", "/api/users/7"},
		{"/api/users/7", "/api/users/7"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("urls mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "7", c.Params.Get("id"))

	got = nil
	_, err = s.Dispatch("/api")
	require.NoError(t, err)
	require.Equal(t, "/", got[0].URL)
}

func TestDispatch_MountRewriteDisabled(t *testing.T) {
	s := stack.New(stack.WithMountRewrite(false))
	var url string
	_, err := s.Push("/api", func(c *stack.Context, next stack.Next) error {
		url = c.URL
		return next(nil)
	}, stack.Mount(true))
	require.NoError(t, err)

	_, err = s.Dispatch("/api/users")
	require.NoError(t, err)
	require.Equal(t, "/api/users", url)
}

func TestDispatch_ParamsAccumulate(t *testing.T) {
	s := stack.New()
	var snapshots []map[string]string
	capture := func(c *stack.Context, next stack.Next) error {
		cp := map[string]string{}
		for k, v := range c.Params {
			cp[k] = v
		}
		snapshots = append(snapshots, cp)
		return next(nil)
	}

	_, err := s.Push("/:id", capture, stack.End(false), stack.Name("outer"))
	require.NoError(t, err)
	_, err = s.Push("/:slug/:id", capture, stack.Name("inner"))
	require.NoError(t, err)

	_, err = s.Dispatch("/a/b")
	require.NoError(t, err)
	want := []map[string]string{
		{"id": "a"},
		{"id": "b", "slug": "a"},
	}
	if diff := cmp.Diff(want, snapshots); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_ErrorPunting(t *testing.T) {
	s := stack.New()
	boom := errors.New("boom")
	var log []string

	_, err := s.Push("/p", func(c *stack.Context, next stack.Next) error {
		log = append(log, "fail")
		return boom
	}, stack.Name("fail"))
	require.NoError(t, err)
	_, err = s.Push("/p", record(&log, "skipped"), stack.Name("skipped"))
	require.NoError(t, err)
	_, err = s.Push("/p", func(err error, c *stack.Context, next stack.Next) error {
		log = append(log, "recover:"+err.Error())
		require.ErrorIs(t, c.Err(), boom)
		return next(nil)
	}, stack.Name("recover"))
	require.NoError(t, err)
	_, err = s.Push("/p", func(err error, c *stack.Context, next stack.Next) error {
		log = append(log, "second-recover")
		return next(err)
	}, stack.Name("second-recover"))
	require.NoError(t, err)
	_, err = s.Push("/p", record(&log, "after"), stack.Name("after"))
	require.NoError(t, err)

	var doneErr error
	_, err = s.Dispatch("/p", stack.WithOnDone(func(c *stack.Context, err error) error {
		doneErr = err
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, doneErr)
	require.Equal(t, []string{"fail", "recover:boom", "after"}, log)
}

func TestDispatch_ErrorReachesOnDone(t *testing.T) {
	s := stack.New()
	boom := errors.New("boom")
	_, err := s.Use(func(c *stack.Context, next stack.Next) error { return next(boom) })
	require.NoError(t, err)

	var doneErr error
	_, err = s.Dispatch("/x", stack.WithOnDone(func(c *stack.Context, err error) error {
		doneErr = err
		return nil
	}))
	require.NoError(t, err)
	require.ErrorIs(t, doneErr, boom)
}

func TestDispatch_PanicBecomesError(t *testing.T) {
	s := stack.New()
	_, err := s.Use(func(c *stack.Context, next stack.Next) error { panic("bad") })
	require.NoError(t, err)

	var recovered error
	_, err = s.Use(func(err error, c *stack.Context, next stack.Next) error {
		recovered = err
		return next(nil)
	})
	require.NoError(t, err)

	_, err = s.Dispatch("/")
	require.NoError(t, err)
	var fe *stack.FaultError
	require.ErrorAs(t, recovered, &fe)
	require.Equal(t, "bad", fe.Value)
}

func TestDispatch_UnhandledErrorReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := stack.New(stack.WithLogger(zap.New(core)))
	boom := errors.New("boom")
	_, err := s.Use(func(c *stack.Context, next stack.Next) error { return boom })
	require.NoError(t, err)

	_, err = s.Dispatch("/x")
	var ue *stack.UnhandledError
	require.ErrorAs(t, err, &ue)
	require.ErrorIs(t, err, boom)
	require.True(t, stack.IsDoNotReprocess(err))
	require.Equal(t, 1, logs.FilterMessage("unhandled dispatch error").Len())
}

func TestDispatch_OnDoneFailureIsNotReprocessed(t *testing.T) {
	s := stack.New()
	var upstream error
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		upstream = next(nil)
		return upstream
	})
	require.NoError(t, err)

	reprocessed := 0
	_, err = s.Use(func(err error, c *stack.Context, next stack.Next) error {
		reprocessed++
		return next(err)
	})
	require.NoError(t, err)

	doneFailed := errors.New("done failed")
	_, err = s.Dispatch("/x", stack.WithOnDone(func(*stack.Context, error) error { return doneFailed }))

	var pe *stack.PuntError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, doneFailed)
	require.ErrorAs(t, upstream, &pe)
	require.Zero(t, reprocessed)
}

func TestDispatch_OnDonePanicIsPunted(t *testing.T) {
	s := stack.New()
	_, err := s.Use(record(new([]string), "x"))
	require.NoError(t, err)

	_, err = s.Dispatch("/x", stack.WithOnDone(func(*stack.Context, error) error { panic("done") }))
	var pe *stack.PuntError
	require.ErrorAs(t, err, &pe)
	var fe *stack.FaultError
	require.ErrorAs(t, err, &fe)
}

func TestDispatch_HandlerSwallowsError(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		// no next: the chain stops here
		log = append(log, "stop")
		return nil
	})
	require.NoError(t, err)
	_, err = s.Use(record(&log, "never"))
	require.NoError(t, err)

	doneCalled := false
	c, err := s.Dispatch("/", stack.WithOnDone(func(*stack.Context, error) error {
		doneCalled = true
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"stop"}, log)
	require.False(t, doneCalled)

	select {
	case <-c.Done():
		t.Fatal("done closed for a stalled chain")
	default:
	}
}

func TestDispatch_DeferredContinuation(t *testing.T) {
	s := stack.New()
	var (
		mu   sync.Mutex
		log  []string
		held stack.Next
	)
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		held = next
		return nil
	})
	require.NoError(t, err)
	_, err = s.Use(func(c *stack.Context, next stack.Next) error {
		mu.Lock()
		log = append(log, "later")
		mu.Unlock()
		return next(nil)
	})
	require.NoError(t, err)

	c, err := s.Dispatch("/x")
	require.NoError(t, err)
	require.ErrorIs(t, c.Next(nil), stack.ErrContinuationClosed)

	go func() { _ = held(nil) }()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deferred continuation never finished")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"later"}, log)
}

func TestDispatch_ContinuationFromGoroutine(t *testing.T) {
	s := stack.New()
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		go func() { _ = next(nil) }()
		return nil
	})
	require.NoError(t, err)
	_, err = s.Push("/items/:id", func(c *stack.Context, next stack.Next) error {
		return next(nil)
	}, stack.Name("show"))
	require.NoError(t, err)
	_, err = s.Push("/items/:id", "remote", stack.Where(stack.Far))
	require.NoError(t, err)

	var (
		hooks  atomic.Int32
		mu     sync.Mutex
		params []stack.Params
	)
	s.OnFarSideDispatch(func(c *stack.Context, url string, o stack.DispatchOptions) error {
		hooks.Add(1)
		p := c.CopyParams()
		mu.Lock()
		params = append(params, p)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 50; i++ {
		c, err := s.Dispatch("/items/1")
		require.NoError(t, err)
		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("continuation never finished")
		}
		require.True(t, c.Seen(stack.Far))
		require.True(t, c.Handled())
		require.NoError(t, c.HandoffErr())
		// whichever of Dispatch and the goroutine finishes last hands off
		require.EqualValues(t, i+1, hooks.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	for _, p := range params {
		require.Equal(t, stack.Params{"id": "1"}, p)
	}
}

func TestDispatch_HandoffAfterDispatchReturned(t *testing.T) {
	s := stack.New()
	var held stack.Next
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		held = next
		return nil
	})
	require.NoError(t, err)
	_, err = s.Push("/far", "remote", stack.Where(stack.Far))
	require.NoError(t, err)

	sendFailed := errors.New("send failed")
	hooks := 0
	s.OnFarSideDispatch(func(*stack.Context, string, stack.DispatchOptions) error {
		hooks++
		return sendFailed
	})

	c, err := s.Dispatch("/far")
	require.NoError(t, err)
	require.Zero(t, hooks)
	require.NoError(t, c.HandoffErr())

	require.ErrorIs(t, held(nil), sendFailed)
	require.Equal(t, 1, hooks)
	require.ErrorIs(t, c.HandoffErr(), sendFailed)
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestDispatch_StalledChainDoesNotHandOff(t *testing.T) {
	s := stack.New()
	_, err := s.Push("/work", "remote", stack.Where(stack.Far))
	require.NoError(t, err)
	_, err = s.Push("/work", func(c *stack.Context, next stack.Next) error { return nil })
	require.NoError(t, err)

	hooks := 0
	s.OnFarSideDispatch(func(*stack.Context, string, stack.DispatchOptions) error {
		hooks++
		return nil
	})

	c, err := s.Dispatch("/work")
	require.NoError(t, err)
	require.True(t, c.Seen(stack.Far))
	require.Zero(t, hooks)
}

func TestDispatch_ContinuationIsOneShot(t *testing.T) {
	s := stack.New()
	var second error
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		if err := next(nil); err != nil {
			return err
		}
		second = next(nil)
		return nil
	})
	require.NoError(t, err)
	count := 0
	_, err = s.Use(func(c *stack.Context, next stack.Next) error {
		count++
		return next(nil)
	})
	require.NoError(t, err)

	_, err = s.Dispatch("/x")
	require.NoError(t, err)
	require.ErrorIs(t, second, stack.ErrContinuationUsed)
	require.Equal(t, 1, count)
}

func TestDispatch_ContextNextDuringTurn(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Use(func(c *stack.Context, next stack.Next) error {
		log = append(log, "first")
		return c.Next(nil)
	})
	require.NoError(t, err)
	_, err = s.Use(record(&log, "second"))
	require.NoError(t, err)

	_, err = s.Dispatch("/x")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, log)
}

func TestDispatch_LookupBodies(t *testing.T) {
	s := stack.New()
	_, err := s.Push("/hello", "greet")
	require.NoError(t, err)

	var log []string
	recv := stack.Locals{"greet": record(&log, "greet")}
	_, err = s.Dispatch("/hello", stack.WithReceiver(recv))
	require.NoError(t, err)
	require.Equal(t, []string{"greet"}, log)

	var doneErr error
	onDone := stack.WithOnDone(func(c *stack.Context, err error) error {
		doneErr = err
		return nil
	})

	_, err = s.Dispatch("/hello", onDone)
	require.NoError(t, err)
	var le *stack.LookupError
	require.ErrorAs(t, doneErr, &le)
	require.Equal(t, "greet", le.Name)
	require.Equal(t, "not found", le.Reason)

	_, err = s.Dispatch("/hello", stack.WithReceiver(struct{}{}), onDone)
	require.NoError(t, err)
	require.ErrorAs(t, doneErr, &le)
	require.Contains(t, le.Reason, "MethodLookup")

	_, err = s.Dispatch("/hello", stack.WithReceiver(stack.Locals{"greet": "nope"}), onDone)
	require.NoError(t, err)
	require.ErrorAs(t, doneErr, &le)
	require.Contains(t, le.Reason, "not callable")
}

func TestDispatch_LookupBodySignature(t *testing.T) {
	s := stack.New()
	boom := errors.New("boom")
	_, err := s.Use(func(c *stack.Context, next stack.Next) error { return boom })
	require.NoError(t, err)
	_, err = s.Push("/x", "rescue", stack.WithSignature(stack.ErrorAware))
	require.NoError(t, err)

	var rescued error
	recv := stack.LookupFunc(func(name string) (any, bool) {
		if name != "rescue" {
			return nil, false
		}
		return stack.ErrorHandlerFunc(func(err error, c *stack.Context, next stack.Next) error {
			rescued = err
			return next(nil)
		}), true
	})

	_, err = s.Dispatch("/x", stack.WithReceiver(recv))
	require.NoError(t, err)
	require.ErrorIs(t, rescued, boom)
}

func TestDispatch_CrossSideHandoff(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Push("/", record(&log, "home"), stack.Name("home"))
	require.NoError(t, err)
	_, err = s.Push("/server", record(&log, "server"), stack.Where(stack.Far), stack.Name("server"))
	require.NoError(t, err)

	var hookURLs []string
	s.OnFarSideDispatch(func(c *stack.Context, url string, o stack.DispatchOptions) error {
		hookURLs = append(hookURLs, url)
		require.Equal(t, stack.Near, o.Side)
		return nil
	})

	c, err := s.Dispatch("/server")
	require.NoError(t, err)
	require.Empty(t, log)
	require.Equal(t, []string{"/server"}, hookURLs)
	require.True(t, c.Seen(stack.Far))
	require.False(t, c.Seen(stack.Near))
	require.False(t, c.Handled())

	c, err = s.Dispatch("/server", stack.AsSide(stack.Far))
	require.NoError(t, err)
	require.Equal(t, []string{"server"}, log)
	require.Len(t, hookURLs, 1)
	require.True(t, c.Handled())

	log = nil
	_, err = s.Dispatch("/")
	require.NoError(t, err)
	require.Equal(t, []string{"home"}, log)
	require.Len(t, hookURLs, 1)
}

func TestDispatch_BothSideHandlersDoNotHandOff(t *testing.T) {
	s := stack.New()
	var log []string
	_, err := s.Use(record(&log, "both"), stack.Where(stack.Both))
	require.NoError(t, err)

	hookCalls := 0
	s.OnFarSideDispatch(func(*stack.Context, string, stack.DispatchOptions) error {
		hookCalls++
		return nil
	})

	c, err := s.Dispatch("/anything")
	require.NoError(t, err)
	require.Zero(t, hookCalls)
	require.True(t, c.Seen(stack.Near))
	require.True(t, c.Seen(stack.Both))

	_, err = s.Dispatch("/anything", stack.AsSide(stack.Far))
	require.NoError(t, err)
	require.Equal(t, []string{"both", "both"}, log)
}

func TestDispatch_HookErrorReturned(t *testing.T) {
	s := stack.New()
	_, err := s.Push("/far", "remote", stack.Where(stack.Far))
	require.NoError(t, err)

	sendFailed := errors.New("send failed")
	s.OnFarSideDispatch(func(*stack.Context, string, stack.DispatchOptions) error { return sendFailed })

	_, err = s.Dispatch("/far")
	require.ErrorIs(t, err, sendFailed)
}

func TestDispatch_HandledTrackingDisabled(t *testing.T) {
	s := stack.New(stack.WithHandledTracking(false))
	_, err := s.Use(record(new([]string), "x"))
	require.NoError(t, err)

	c, err := s.Dispatch("/x")
	require.NoError(t, err)
	require.False(t, c.Handled())
}

func TestDispatch_DefaultSideOption(t *testing.T) {
	s := stack.New(stack.WithDefaultSide(stack.Far))
	h, err := s.Push("/x", "remote")
	require.NoError(t, err)
	require.Equal(t, stack.Far, h.Side)
}

type countingObserver struct {
	ran      []string
	handoffs []string
	finished int
}

func (o *countingObserver) HandlerRan(h *stack.Handler, exec stack.Side) {
	o.ran = append(o.ran, h.Name()+"@"+exec.String())
}
func (o *countingObserver) Handoff(url string)                 { o.handoffs = append(o.handoffs, url) }
func (o *countingObserver) Finished(c *stack.Context, _ error) { o.finished++ }

func TestDispatch_Observer(t *testing.T) {
	obs := &countingObserver{}
	s := stack.New(stack.WithObserver(obs))
	_, err := s.Push("/a", record(new([]string), "a"), stack.Name("a"))
	require.NoError(t, err)
	_, err = s.Push("/a", "remote", stack.Where(stack.Far))
	require.NoError(t, err)

	_, err = s.Dispatch("/a")
	require.NoError(t, err)
	require.Equal(t, []string{"a@near"}, obs.ran)
	require.Equal(t, []string{"/a"}, obs.handoffs)
	require.Equal(t, 1, obs.finished)
}
