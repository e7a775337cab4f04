package bootstrap

import (
	"context"
	"errors"
	"testing"

	platformerrors "companion-server-go/internal/platform/errors"
)

func TestInitGraph_DependenciesDeclaredInOrder(t *testing.T) {
	seen := make(map[string]struct{})
	for _, step := range InitGraph() {
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				t.Errorf("step %s depends on %s which is not declared before it", step.ID, dep)
			}
		}
		seen[step.ID] = struct{}{}
	}
}

func TestLoadConfigStep_PopulatesState(t *testing.T) {
	state := &appState{}
	if err := loadConfigStep(context.Background(), state); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if state.config == nil {
		t.Fatal("expected config to be populated")
	}
	// 无配置文件时落到默认值
	if state.config.Server.Port != 8000 {
		t.Errorf("unexpected server port: %d", state.config.Server.Port)
	}
	if state.config.TTS.ChunkSize != 50 {
		t.Errorf("unexpected chunk size: %d", state.config.TTS.ChunkSize)
	}
}

func TestExecuteInitSteps_MissingDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute:   func(context.Context, *appState) error { return nil },
		},
	}
	if err := executeInitSteps(context.Background(), steps, &appState{}); err == nil {
		t.Fatal("expected error for unsatisfied dependency")
	}
}

func TestExecuteInitSteps_WrapsUntypedErrors(t *testing.T) {
	boom := errors.New("boom")
	steps := []initStep{
		{
			ID:      "a",
			Kind:    platformerrors.KindStorage,
			Execute: func(context.Context, *appState) error { return boom },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if err == nil {
		t.Fatal("expected error")
	}
	var typed *platformerrors.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected typed error, got %T", err)
	}
	if typed.Kind != platformerrors.KindStorage {
		t.Errorf("unexpected kind: %s", typed.Kind)
	}
	if !errors.Is(err, boom) {
		t.Error("expected cause to be preserved")
	}
}
