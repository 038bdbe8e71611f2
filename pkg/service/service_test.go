package service

import (
	"context"
	"errors"
	"testing"
)

type testService struct {
	name  string
	trace *[]string
	err   error
}

func (s testService) Run() { *s.trace = append(*s.trace, "run "+s.name) }
func (s testService) Shutdown(context.Context) error {
	*s.trace = append(*s.trace, "stop "+s.name)
	return s.err
}

func TestGroup(t *testing.T) {
	var trace []string
	boom := errors.New("boom")
	g := Group{}
	g.Add(testService{name: "a", trace: &trace}, testService{name: "b", trace: &trace, err: boom})

	g.Start()
	err := g.Shutdown(context.Background())

	if !errors.Is(err, boom) {
		t.Errorf("expected the shutdown error, got %v", err)
	}
	want := []string{"run a", "run b", "stop b", "stop a"}
	if len(trace) != len(want) {
		t.Fatalf("got %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("%v != %v", trace[i], want[i])
		}
	}
}
