package kvstore

import "testing"

// Cases are the literal examples from spec.md §8 scenario 5.
func TestParseHosts(t *testing.T) {
	tests := []struct {
		in      string
		want    []Host
		wantErr bool
	}{
		{in: "foo", want: []Host{{Name: "foo", Port: 3000}}},
		{in: "foo:1234", want: []Host{{Name: "foo", Port: 1234}}},
		{in: "foo:bar:1234", want: []Host{{Name: "foo", Port: 1234}}},
		{in: "foo:1234,bar:1234", want: []Host{{Name: "foo", Port: 1234}, {Name: "bar", Port: 1234}}},
		{in: "", wantErr: true},
		{in: ",", wantErr: true},
		{in: ":", wantErr: true},
		{in: "foo:", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseHosts(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseHosts(%q): expected error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHosts(%q): unexpected error: %v", tc.in, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("ParseHosts(%q) = %v, want %v", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("ParseHosts(%q)[%d] = %v, want %v", tc.in, i, got[i], tc.want[i])
				}
			}
		})
	}
}
