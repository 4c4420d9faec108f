package domain_test

import (
	"testing"

	"github.com/jobqueue/jobqueue/internal/domain"
)

func TestParseSchedulePolicy_Interval(t *testing.T) {
	p, err := domain.ParseSchedulePolicy("60")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != domain.ScheduleInterval || p.IntervalSec != 60 {
		t.Fatalf("unexpected policy: %+v", p)
	}

	next, ok := p.NextFire(1000, nil)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	if next != 1020 {
		t.Fatalf("expected 1020 (next 60s boundary after 1000), got %d", next)
	}
}

func TestParseSchedulePolicy_IntervalRespectsUntil(t *testing.T) {
	p, _ := domain.ParseSchedulePolicy("60")
	until := int64(1010)
	if _, ok := p.NextFire(1000, &until); ok {
		t.Fatal("expected no next fire when it would exceed until")
	}
}

func TestParseSchedulePolicy_CronFiveFieldsGetsSecondsPrepended(t *testing.T) {
	p, err := domain.ParseSchedulePolicy("*/5 * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != domain.ScheduleCron {
		t.Fatalf("expected cron kind, got %v", p.Kind)
	}
	if p.String() != "0 */5 * * * *" {
		t.Fatalf("expected normalized 6-field form, got %q", p.String())
	}
}

func TestParseSchedulePolicy_CronSixFieldsPassThrough(t *testing.T) {
	p, err := domain.ParseSchedulePolicy("30 */5 * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CronExpr != "30 */5 * * * *" {
		t.Fatalf("unexpected normalized form: %q", p.CronExpr)
	}
}

func TestParseSchedulePolicy_InvalidEmpty(t *testing.T) {
	if _, err := domain.ParseSchedulePolicy(""); err == nil {
		t.Fatal("expected error for empty schedule")
	}
}

func TestParseSchedulePolicy_InvalidFieldCount(t *testing.T) {
	if _, err := domain.ParseSchedulePolicy("* * *"); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}
