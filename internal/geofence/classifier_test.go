package geofence

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawSignal
		wantType TransitionType
		wantIDs  []string
		wantErr  error
	}{
		{
			name:     "enter",
			raw:      RawSignal{Transition: PlatformEnter, TriggeringIDs: []string{"home"}},
			wantType: TransitionEnter,
			wantIDs:  []string{"home"},
		},
		{
			name:     "exit keeps platform order",
			raw:      RawSignal{Transition: PlatformExit, TriggeringIDs: []string{"b", "a", "c"}},
			wantType: TransitionExit,
			wantIDs:  []string{"b", "a", "c"},
		},
		{
			name:     "empty ids still delivered",
			raw:      RawSignal{Transition: PlatformEnter},
			wantType: TransitionEnter,
			wantIDs:  []string{},
		},
		{
			name:    "dwell dropped",
			raw:     RawSignal{Transition: PlatformDwell, TriggeringIDs: []string{"home"}},
			wantErr: ErrClassificationDropped,
		},
		{
			name:    "unrecognised code dropped",
			raw:     RawSignal{Transition: 99},
			wantErr: ErrClassificationDropped,
		},
		{
			name:    "platform error",
			raw:     RawSignal{HasError: true, ErrorCode: StatusNotAvailable, Transition: PlatformEnter},
			wantErr: &Error{Kind: PlatformAPIError, StatusCode: StatusNotAvailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Classify(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Classify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", ev.Type, tt.wantType)
			}
			if len(ev.IDs) != len(tt.wantIDs) {
				t.Fatalf("IDs = %v, want %v", ev.IDs, tt.wantIDs)
			}
			for i := range ev.IDs {
				if ev.IDs[i] != tt.wantIDs[i] {
					t.Errorf("IDs = %v, want %v", ev.IDs, tt.wantIDs)
				}
			}
		})
	}
}

func TestClassify_NeverProducesUnknown(t *testing.T) {
	for code := -1; code <= 8; code++ {
		ev, err := Classify(RawSignal{Transition: code, TriggeringIDs: []string{"x"}})
		if err == nil && ev.Type == TransitionUnknown {
			t.Errorf("code %d produced an UNKNOWN event", code)
		}
		if err == nil && code != PlatformEnter && code != PlatformExit {
			t.Errorf("code %d produced an event", code)
		}
	}
}

func TestClassify_CopiesIDs(t *testing.T) {
	raw := RawSignal{Transition: PlatformEnter, TriggeringIDs: []string{"a"}}
	ev, _ := Classify(raw)
	raw.TriggeringIDs[0] = "mutated"
	if ev.IDs[0] != "a" {
		t.Error("event must not alias the raw signal's slice")
	}
}
