package autopilot

import (
	"errors"
	"testing"
	"time"

	"postpilot/internal/core"
)

func TestPreview(t *testing.T) {
	o := newTestOrchestrator(&fakeIdeas{}, &fakeComposer{}, &memPosts{})
	p, err := o.Preview(&core.BusinessProfile{Industry: "SaaS"}, Options{Weeks: 2, Platforms: []core.Platform{core.PlatformLinkedIn}})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	// saas posts 3 a week; floor rounding of 6 posts keeps 2/1/1/0/0.
	if p.Total != 6 || p.PerWeek != 3 || !p.B2B {
		t.Fatalf("unexpected preview %+v", p)
	}
	if len(p.Slots) != core.MixTotal(p.Mix) || len(p.Slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(p.Slots))
	}
	if p.Slots[0].Category != core.CategoryEducational || p.Slots[1].Category != core.CategoryPromotional {
		t.Fatalf("categories not interleaved: %+v", p.Slots)
	}
	for i, s := range p.Slots {
		if !s.At.After(monday8am) {
			t.Fatalf("slot %d not in the future: %s", i, s.At)
		}
		if wd := s.At.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("b2b slot %d on weekend", i)
		}
		if i > 0 && !s.At.After(p.Slots[i-1].At) {
			t.Fatalf("slots not increasing at %d", i)
		}
	}
}

func TestPreviewRequiresIndustry(t *testing.T) {
	o := newTestOrchestrator(&fakeIdeas{}, &fakeComposer{}, &memPosts{})
	_, err := o.Preview(&core.BusinessProfile{}, Options{Weeks: 1})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "industry" {
		t.Fatalf("expected industry config error, got %v", err)
	}
}
