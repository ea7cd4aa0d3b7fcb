package di

import "testing"

type greeter struct{ name string }

func TestRegisterToken_LazySingleton(t *testing.T) {
	c := NewContainer()
	c.Register("name", "poolsync")

	token := NewToken[*greeter]("test.greeter")
	builds := 0
	RegisterToken(c, token, func(sr ServiceRegistry) *greeter {
		builds++
		return &greeter{name: sr.Get("name").(string)}
	})

	g1 := GetToken(c, token)
	g2 := GetToken(c, token)

	if g1 != g2 {
		t.Error("expected the same instance on every resolution")
	}
	if builds != 1 {
		t.Errorf("expected factory to run once, ran %d times", builds)
	}
	if g1.name != "poolsync" {
		t.Errorf("expected name poolsync, got %s", g1.name)
	}
}

func TestGetToken_MissingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unregistered service")
		}
	}()
	GetToken(NewContainer(), NewToken[int]("missing"))
}
