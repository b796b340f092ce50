package sched

import "context"
import "errors"
import "testing"
import "time"

import "timer"

func TestSupervisorWaitReturnsNilOnStop(t *testing.T) {
	s := New(context.Background())
	s.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Stop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait after Stop = %v, want nil", err)
	}
}

func TestSupervisorPropagatesDaemonError(t *testing.T) {
	boom := errors.New("boom")
	s := New(context.Background())
	s.Go(func(ctx context.Context) error { return boom })
	s.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Wait(); err != boom {
		t.Fatalf("Wait = %v, want %v", err, boom)
	}
}

func TestRunTimerDaemonAdvancesClock(t *testing.T) {
	s := New(context.Background())
	s.RunTimerDaemon(5 * time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	s.Stop()
	s.Wait()
	if now := timer.Now(); now <= 0 {
		t.Fatalf("timer.Now() = %d after the daemon ran, want > 0", now)
	}
}
