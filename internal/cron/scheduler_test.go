package cron_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/mnemo/internal/cron"
	"github.com/flemzord/mnemo/internal/cron/crontest"
	"github.com/flemzord/mnemo/internal/telemetry"
)

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "history_trim", ScheduleVal: "* * * * *"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "history_trim", ScheduleVal: "0 * * * *"}); err == nil {
		t.Error("duplicate name accepted")
	}
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "optimize", ScheduleVal: "0 4 * * *"}); err != nil {
		t.Fatalf("second job: %v", err)
	}
	if got := strings.Join(s.Jobs(), ","); got != "history_trim,optimize" {
		t.Errorf("Jobs() = %s", got)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.RegisterJob(&crontest.MockJob{NameVal: "late", ScheduleVal: "* * * * *"}); err == nil {
		t.Error("registration after start accepted")
	}
	if err := s.Start(); err == nil {
		t.Error("second Start accepted")
	}
}

func TestScheduler_StartReportsEveryBadSchedule(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "good", ScheduleVal: "*/5 * * * *"})
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "bad_one", ScheduleVal: "invalid"})
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "bad_two", ScheduleVal: "0 25 * * *"})

	err := s.Start()
	if err == nil {
		t.Fatal("expected error for invalid schedules")
	}
	for _, name := range []string{"bad_one", "bad_two"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
	if strings.Contains(err.Error(), `"good"`) {
		t.Errorf("error %q names a valid job", err)
	}
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	t.Parallel()

	metrics := telemetry.NewMetrics()
	s := cron.NewScheduler(nil, cron.WithMetrics(metrics))
	fail := true
	job := &crontest.MockJob{
		NameVal:     "store_stats",
		ScheduleVal: "0 0 1 1 *",
		RunFunc: func(context.Context) error {
			if fail {
				return errors.New("store offline")
			}
			return nil
		},
	}
	_ = s.RegisterJob(job)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.RunNow(context.Background(), "store_stats"); err == nil {
		t.Fatal("RunNow should surface the job error")
	}
	fail = false
	if err := s.RunNow(context.Background(), "store_stats"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	status := s.Status()
	if len(status) != 1 {
		t.Fatalf("status entries = %d", len(status))
	}
	st := status[0]
	if st.Runs != 2 || st.Failures != 1 || st.LastError != "" {
		t.Errorf("status = %+v, want 2 runs, 1 failure, cleared error", st)
	}
	if st.LastRun.IsZero() || st.Next.IsZero() {
		t.Errorf("status times = last %v next %v", st.LastRun, st.Next)
	}
	if job.CallCount() != 2 {
		t.Errorf("calls = %d", job.CallCount())
	}

	for outcome, want := range map[string]float64{"ok": 1, "error": 1} {
		if got := maintenanceRuns(t, metrics, "store_stats", outcome); got != want {
			t.Errorf("maintenance_runs_total{outcome=%q} = %v, want %v", outcome, got, want)
		}
	}
}

func maintenanceRuns(t *testing.T, m *telemetry.Metrics, job, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "mnemo_maintenance_runs_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestScheduler_RunNowBusyAndUnknown(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	_ = s.RegisterJob(&crontest.MockJob{
		NameVal:     "slow",
		ScheduleVal: "0 0 1 1 *",
		RunFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, cron.ErrJobBusy) {
		t.Errorf("concurrent RunNow = %v, want ErrJobBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first RunNow: %v", err)
	}

	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("unknown job accepted")
	}
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop without Start: %v", err)
	}

	s = cron.NewScheduler(nil)
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "noop", ScheduleVal: "* * * * *"})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
