package guard

import "testing"

func TestConditionsEvaluate(t *testing.T) {
	cases := []struct {
		name  string
		conds Conditions
		attrs Attrs
		want  bool
	}{
		{"empty matches", nil, nil, true},
		{"missing key fails", Conditions{"dept": "eng"}, Attrs{}, false},
		{"scalar equal", Conditions{"dept": "eng"}, Attrs{"dept": "eng"}, true},
		{"scalar differs", Conditions{"dept": "eng"}, Attrs{"dept": "ops"}, false},
		{"string never equals number", Conditions{"level": "3"}, Attrs{"level": 3}, false},
		{"numbers compare by value", Conditions{"level": float64(3)}, Attrs{"level": 3}, true},
		{"bool never equals number", Conditions{"flag": true}, Attrs{"flag": 1}, false},
		{"list membership", Conditions{"region": []any{"eu", "us"}}, Attrs{"region": "eu"}, true},
		{"list miss", Conditions{"region": []string{"eu", "us"}}, Attrs{"region": "apac"}, false},
		{"list is strict", Conditions{"tier": []any{1, 2}}, Attrs{"tier": "1"}, false},
		{"all must hold", Conditions{"a": 1, "b": 2}, Attrs{"a": 1, "b": 3}, false},
	}
	for _, tc := range cases {
		if got := tc.conds.Evaluate(tc.attrs); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
