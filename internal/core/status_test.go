package core

import "testing"

func TestParseTaskStatus(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  TaskStatus
		ok    bool
	}{
		{name: "todo", input: "TODO", want: TaskStatusTodo, ok: true},
		{name: "in progress", input: "IN_PROGRESS", want: TaskStatusInProgress, ok: true},
		{name: "done", input: "DONE", want: TaskStatusDone, ok: true},
		{name: "empty", input: "", ok: false},
		{name: "lowercase", input: "todo", ok: false},
		{name: "garbage", input: "SHIPPED", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseTaskStatus(tc.input)
			if ok != tc.ok {
				t.Fatalf("ParseTaskStatus(%q): ok = %v, want %v", tc.input, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("ParseTaskStatus(%q): got %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}
