package ptr_test

import (
	"testing"

	"github.com/myrjola/periodize/internal/ptr"
)

func TestRef(t *testing.T) {
	effort := 8.5
	p := ptr.Ref(effort)
	effort = 10
	if *p != 8.5 {
		t.Errorf("*Ref() = %v, want 8.5 after the source changed", *p)
	}
	if ptr.Ref(effort) == ptr.Ref(effort) {
		t.Error("Ref() returned the same pointer twice")
	}
}

func TestDeref(t *testing.T) {
	tests := []struct {
		name string
		p    *int
		want int
	}{
		{name: "nil uses fallback", p: nil, want: 4},
		{name: "zero value is kept", p: ptr.Ref(0), want: 0},
		{name: "value", p: ptr.Ref(2), want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ptr.Deref(tt.p, 4); got != tt.want {
				t.Errorf("Deref() = %d, want %d", got, tt.want)
			}
		})
	}
}
