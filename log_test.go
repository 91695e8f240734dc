package dbusmsg

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	c, p := newTestConn(t)
	orphan, err := NewMethodReturn(&Message{hdr: header{Serial: 77}})
	if err != nil {
		t.Fatal(err)
	}
	p.send(orphan)
	pump(t, c, func() bool {
		return logs.FilterMessage("dropping unhandled message").Len() > 0
	})

	SetLogger(nil)
	l := Logger()
	if l == nil {
		t.Fatal("Logger() is nil after SetLogger(nil)")
	}
	l.Error("after reset")
	if n := logs.FilterMessage("after reset").Len(); n != 0 {
		t.Errorf("reset logger still wrote %d entries to the old one", n)
	}
}
