package stages

import (
	"context"
	"errors"
	"testing"

	"dealership_portal/internal/pipeline/domain"
)

type stageList struct {
	stages []domain.Stage
	err    error
}

func (l *stageList) ListStages(context.Context) ([]domain.Stage, error) {
	return l.stages, l.err
}

func stage(id, name string) domain.Stage {
	return domain.Stage{ID: id, Name: name}
}

func ids(stages []domain.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.ID
	}
	return out
}

func TestLoadDropsBlankAndDuplicateIDs(t *testing.T) {
	src := &stageList{stages: []domain.Stage{
		stage("s-1", "new"), stage("", "ghost"), stage("s-2", "contacted"), stage("s-1", "dup"),
	}}
	d := NewDirectory(src)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	all, err := d.Scope(domain.FilterContext{})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	got := ids(all)
	if len(got) != 2 || got[0] != "s-1" || got[1] != "s-2" {
		t.Fatalf("unexpected stages %v", got)
	}
	if all[0].Name != "new" {
		t.Fatalf("expected first s-1 kept, got %+v", all[0])
	}
}

func TestFailedLoadKeepsPreviousStages(t *testing.T) {
	src := &stageList{stages: []domain.Stage{stage("s-1", "new")}}
	d := NewDirectory(src)

	if _, err := d.Scope(domain.FilterContext{}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	src.err = errors.New("down")
	if err := d.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if kept, err := d.Scope(domain.FilterContext{}); err != nil || len(kept) != 1 {
		t.Fatalf("expected previous stages kept, got %v %v", kept, err)
	}
}

func TestScope(t *testing.T) {
	d := NewDirectory(&stageList{stages: []domain.Stage{
		stage("s-1", "new"), stage("s-2", "contacted"), stage("s-3", domain.StageConverted), stage("s-4", "lost"),
	}})
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name   string
		filter domain.FilterContext
		want   []string
	}{
		{"all stages", domain.FilterContext{}, []string{"s-1", "s-2", "s-3", "s-4"}},
		{"selection keeps directory order", domain.FilterContext{SelectedStageIDs: []string{"s-4", "s-1"}}, []string{"s-1", "s-4"}},
		{"unknown selection", domain.FilterContext{SelectedStageIDs: []string{"nope"}}, []string{}},
		{"converted view", domain.FilterContext{ViewMode: domain.ViewConverted}, []string{"s-3"}},
		{"converted outside selection", domain.FilterContext{ViewMode: domain.ViewConverted, SelectedStageIDs: []string{"s-1"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Scope(tt.filter)
			if err != nil {
				t.Fatalf("scope: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, gotIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, gotIDs)
				}
			}
		})
	}
}
