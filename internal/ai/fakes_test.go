package ai

import (
	"context"
	"errors"
)

type fakeProvider struct {
	deltas []string
	err    error
	got    Request
	seen   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Stream(ctx context.Context, req Request, onDelta func(string) error) error {
	f.got = req
	for _, d := range f.deltas {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.seen++
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

type sentEvent struct {
	Name string
	Data any
}

type recorder struct {
	events  []sentEvent
	failOn  string
	failErr error
}

func (r *recorder) Event(name string, data any) error {
	if r.failOn == name {
		return r.failErr
	}
	r.events = append(r.events, sentEvent{Name: name, Data: data})
	return nil
}

func (r *recorder) texts() []string {
	var out []string
	for _, e := range r.events {
		if e.Name == "chunk" {
			out = append(out, e.Data.(map[string]string)["text"])
		}
	}
	return out
}

var errGone = errors.New("client gone")
