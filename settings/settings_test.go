package settings

import (
	"sync"
	"testing"
)

func TestSettingConstructors(t *testing.T) {
	tests := []struct {
		name    string
		setting Setting
		kind    Kind
		check   func(t *testing.T, s Setting)
	}{
		{
			name:    "capture pre gain",
			setting: CapturePreGain(2.5),
			kind:    KindCapturePreGain,
			check: func(t *testing.T, s Setting) {
				if s.Float() != 2.5 {
					t.Errorf("Float() = %f, want 2.5", s.Float())
				}
			},
		},
		{
			name:    "capture post gain",
			setting: CapturePostGain(0.5),
			kind:    KindCapturePostGain,
			check: func(t *testing.T, s Setting) {
				if s.Float() != 0.5 {
					t.Errorf("Float() = %f, want 0.5", s.Float())
				}
			},
		},
		{
			name:    "capture output used",
			setting: CaptureOutputUsed(false),
			kind:    KindCaptureOutputUsed,
			check: func(t *testing.T, s Setting) {
				if s.Bool() != false {
					t.Error("Bool() = true, want false")
				}
			},
		},
		{
			name:    "playout volume change",
			setting: PlayoutVolumeChange(180),
			kind:    KindPlayoutVolumeChange,
			check: func(t *testing.T, s Setting) {
				if s.Int() != 180 {
					t.Errorf("Int() = %d, want 180", s.Int())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setting.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", tt.setting.Kind(), tt.kind)
			}
			tt.check(t, tt.setting)
		})
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		if !q.Post(PlayoutVolumeChange(i)) {
			t.Fatalf("Post %d rejected on non-full queue", i)
		}
	}

	var got []int
	applied := q.Drain(func(s Setting) {
		got = append(got, s.Int())
	})
	if applied != 5 {
		t.Fatalf("Drain applied %d settings, want 5", applied)
	}
	for i, v := range got {
		if v != i {
			t.Errorf("drained setting %d carries %d, want %d", i, v, i)
		}
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Post(CapturePreGain(1)) || !q.Post(CapturePreGain(2)) {
		t.Fatal("posts rejected below capacity")
	}
	if q.Post(CapturePreGain(3)) {
		t.Error("post accepted on full queue")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	// A drain frees the capacity again.
	q.Drain(func(Setting) {})
	if !q.Post(CapturePreGain(4)) {
		t.Error("post rejected after drain")
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewQueue(4)
	if applied := q.Drain(func(Setting) {}); applied != 0 {
		t.Errorf("Drain on empty queue applied %d settings", applied)
	}
}

func TestQueueCapacityFallback(t *testing.T) {
	q := NewQueue(0)
	if q.Capacity() != DefaultQueueCapacity {
		t.Errorf("Capacity() = %d, want %d", q.Capacity(), DefaultQueueCapacity)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(DefaultQueueCapacity)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				q.Post(CapturePreGain(1.0))
			}
		}()
	}
	wg.Wait()

	if applied := q.Drain(func(Setting) {}); applied != 80 {
		t.Errorf("Drain applied %d settings, want 80", applied)
	}
}
