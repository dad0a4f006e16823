package slicemap

import (
	"errors"
	"testing"

	brcerrors "github.com/five82/brcplan/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		frameLCUs int
		slices    []Slice
		wantErr   error
	}{
		{"single", 100, Single(100), nil},
		{"three", 30, []Slice{{0, 0, 10}, {1, 10, 10}, {2, 20, 10}}, nil},
		{"sparse ids", 30, []Slice{{0, 0, 10}, {4, 10, 20}}, nil},
		{"no lcus", 0, Single(0), ErrInvalidFrame},
		{"no slices", 10, nil, ErrNoSlices},
		{"empty slice", 10, []Slice{{0, 0, 10}, {1, 10, 0}}, ErrEmptySlice},
		{"gap", 30, []Slice{{0, 0, 10}, {1, 12, 18}}, ErrNotContiguous},
		{"overlap", 30, []Slice{{0, 0, 10}, {1, 8, 22}}, ErrNotContiguous},
		{"not from zero", 30, []Slice{{0, 2, 28}}, ErrNotContiguous},
		{"id order", 30, []Slice{{1, 0, 10}, {1, 10, 20}}, ErrSliceOrder},
		{"short", 30, []Slice{{0, 0, 10}, {1, 10, 10}}, ErrIncompleteCoverage},
		{"long", 30, []Slice{{0, 0, 40}}, ErrIncompleteCoverage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.frameLCUs, tt.slices)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if !brcerrors.IsKind(err, brcerrors.KindConfig) {
				t.Errorf("Validate() error kind is not config: %v", err)
			}
		})
	}
}

func TestBuildCoverageAndOrder(t *testing.T) {
	layouts := [][]Slice{
		Single(64 * 36),
		{{0, 0, 64 * 12}, {1, 64 * 12, 64 * 12}, {2, 64 * 24, 64 * 12}},
		{{0, 0, 100}, {1, 100, 1}, {2, 101, 2203}},
		{{3, 0, 1000}, {7, 1000, 1304}},
	}

	for _, slices := range layouts {
		b := NewBuilder()
		m, err := b.Build(64*36, slices)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if m.Len() != 64*36 {
			t.Fatalf("Len() = %d, want %d", m.Len(), 64*36)
		}

		for _, s := range slices {
			for lcu := s.StartLCU; lcu < s.End(); lcu++ {
				if got := m.SliceAt(lcu); got != s.ID {
					t.Fatalf("SliceAt(%d) = %d, want %d", lcu, got, s.ID)
				}
			}
		}
		for lcu := 1; lcu < m.Len(); lcu++ {
			if m.IDs[lcu] < m.IDs[lcu-1] {
				t.Fatalf("ids decrease at LCU %d: %d after %d", lcu, m.IDs[lcu], m.IDs[lcu-1])
			}
		}
	}
}

func TestBuildSingleSliceMemo(t *testing.T) {
	b := NewBuilder()
	three := []Slice{{0, 0, 10}, {1, 10, 10}, {2, 20, 10}}

	steps := []struct {
		name         string
		frameLCUs    int
		slices       []Slice
		wantRebuilds int
	}{
		{"first single", 30, Single(30), 1},
		{"single again", 30, Single(30), 1},
		{"to three", 30, three, 2},
		{"three again", 30, three, 3},
		{"back to single", 30, Single(30), 4},
		{"single again", 30, Single(30), 4},
		{"resized single", 40, Single(40), 5},
	}

	for _, st := range steps {
		m, err := b.Build(st.frameLCUs, st.slices)
		if err != nil {
			t.Fatalf("%s: Build() error = %v", st.name, err)
		}
		if got := b.Rebuilds(); got != st.wantRebuilds {
			t.Errorf("%s: Rebuilds() = %d, want %d", st.name, got, st.wantRebuilds)
		}
		for i, id := range m.IDs {
			if len(st.slices) == 1 && id != 0 {
				t.Fatalf("%s: IDs[%d] = %d, want 0", st.name, i, id)
			}
		}
	}
}

func TestBuildInvalidate(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Build(16, Single(16)); err != nil {
		t.Fatal(err)
	}
	b.Invalidate()
	if _, err := b.Build(16, Single(16)); err != nil {
		t.Fatal(err)
	}
	if got := b.Rebuilds(); got != 2 {
		t.Errorf("Rebuilds() after Invalidate = %d, want 2", got)
	}
}

func TestBuildRejectsInvalid(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Build(30, []Slice{{0, 0, 10}, {1, 11, 19}}); !errors.Is(err, ErrNotContiguous) {
		t.Errorf("Build() error = %v, want ErrNotContiguous", err)
	}
}

func TestBuildInto(t *testing.T) {
	b := NewBuilder()
	slices := []Slice{{0, 0, 10}, {1, 10, 10}}

	err := b.BuildInto(make([]uint16, 15), 20, slices)
	if !brcerrors.IsRetryable(err) {
		t.Fatalf("BuildInto(short) error = %v, want retryable", err)
	}

	dst := make([]uint16, 24)
	for i := range dst {
		dst[i] = 99
	}
	if err := b.BuildInto(dst, 20, slices); err != nil {
		t.Fatalf("BuildInto() error = %v", err)
	}
	if dst[9] != 0 || dst[10] != 1 || dst[19] != 1 {
		t.Errorf("BuildInto() wrote %v", dst[:20])
	}
	if dst[20] != 99 {
		t.Errorf("BuildInto() wrote past the frame: dst[20] = %d", dst[20])
	}
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		slices []Slice
		width  int
		height int
		unit   int
		want   []SliceRows
	}{
		{
			name:   "row aligned diagonal",
			slices: []Slice{{0, 0, 40}, {1, 40, 30}},
			width: 10, height: 7, unit: 1,
			want: []SliceRows{{0, 0, 4, false}, {1, 4, 7, false}},
		},
		{
			name:   "odd rows under zigzag",
			slices: []Slice{{0, 0, 30}, {1, 30, 40}},
			width: 10, height: 7, unit: 2,
			want: []SliceRows{{0, 0, 3, true}, {1, 3, 7, true}},
		},
		{
			name:   "odd frame height tail",
			slices: []Slice{{0, 0, 40}, {1, 40, 30}},
			width: 10, height: 7, unit: 2,
			want: []SliceRows{{0, 0, 4, false}, {1, 4, 7, false}},
		},
		{
			name:   "mid row slice",
			slices: []Slice{{0, 0, 15}, {1, 15, 55}},
			width: 10, height: 7, unit: 1,
			want: []SliceRows{{0, 0, 2, true}, {1, 1, 7, true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Boundaries(tt.slices, tt.width, tt.height, tt.unit)
			if len(got) != len(tt.want) {
				t.Fatalf("Boundaries() returned %d rows, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Boundaries()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			wantAny := false
			for _, r := range tt.want {
				wantAny = wantAny || r.Arbitrary
			}
			if AnyArbitrary(got) != wantAny {
				t.Errorf("AnyArbitrary() = %v, want %v", !wantAny, wantAny)
			}
		})
	}
}

func TestRows(t *testing.T) {
	tests := []struct {
		name                   string
		width, height, n, unit int
		wantLCUs               []int
	}{
		{"three zigzag slices", 8, 17, 3, 2, []int{48, 48, 40}},
		{"clamped to rows", 8, 4, 10, 1, []int{8, 8, 8, 8}},
		{"uneven", 8, 5, 2, 1, []int{16, 24}},
		{"single", 30, 17, 1, 2, []int{510}},
		{"zero means one", 4, 4, 0, 1, []int{16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rows(tt.width, tt.height, tt.n, tt.unit)
			if err := Validate(tt.width*tt.height, got); err != nil {
				t.Fatalf("Rows() produced invalid layout: %v", err)
			}
			if len(got) != len(tt.wantLCUs) {
				t.Fatalf("Rows() = %d slices, want %d", len(got), len(tt.wantLCUs))
			}
			for i, s := range got {
				if s.NumLCUs != tt.wantLCUs[i] {
					t.Errorf("slice %d has %d LCUs, want %d", i, s.NumLCUs, tt.wantLCUs[i])
				}
			}
		})
	}
}
