package monolith

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/di"
	"github.com/fd1az/poolsync/internal/logger"
)

type recordingModule struct {
	name     string
	trace    *[]string
	startErr error
}

func (m recordingModule) Name() string { return m.name }

func (m recordingModule) RegisterServices(c di.Container) error {
	*m.trace = append(*m.trace, "register:"+m.name)
	return nil
}

func (m recordingModule) Startup(ctx context.Context, mono Monolith) error {
	*m.trace = append(*m.trace, "start:"+m.name)
	return m.startErr
}

func TestApp_ModulesAndClose(t *testing.T) {
	var trace []string
	a := New(&config.Config{}, logger.NewNop(), nil)

	mods := []Module{recordingModule{name: "a", trace: &trace}, recordingModule{name: "b", trace: &trace}}
	if err := a.RegisterModules(mods...); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.StartModules(context.Background(), mods...); err != nil {
		t.Fatalf("start: %v", err)
	}

	a.OnClose(func() error { trace = append(trace, "close:1"); return nil })
	a.OnClose(func() error { trace = append(trace, "close:2"); return errors.New("boom") })

	if err := a.Close(); err == nil {
		t.Error("expected joined close error")
	}

	want := []string{"register:a", "register:b", "start:a", "start:b", "close:2", "close:1"}
	if len(trace) != len(want) {
		t.Fatalf("expected %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], trace[i])
		}
	}

	if _, ok := a.Services().Get("config").(*config.Config); !ok {
		t.Error("expected config in container")
	}
}

func TestApp_StartStopsAtFirstFailure(t *testing.T) {
	var trace []string
	a := New(&config.Config{}, logger.NewNop(), nil)
	cause := errors.New("rpc down")

	err := a.StartModules(context.Background(),
		recordingModule{name: "blockchain", trace: &trace, startErr: cause},
		recordingModule{name: "pool", trace: &trace},
	)
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	if !strings.Contains(err.Error(), "start blockchain") {
		t.Errorf("err = %q, want module name", err)
	}
	if len(trace) != 1 {
		t.Errorf("later modules started: %v", trace)
	}
}
