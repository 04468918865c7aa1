package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"NotFound", New(NotFound, "pedido não encontrado"), NotFound},
		{"Validation", Newf(Validation, "lat fora do intervalo: %v", 99.0), Validation},
		{"Wrapped", fmt.Errorf("handler: %w", New(Conflict, "telefone já cadastrado")), Conflict},
		{"Plain error", errors.New("boom"), Internal},
		{"Nil inner", Wrap(Internal, "store", errors.New("disk full")), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(InvalidTransition, "pedido não pode ser bipado"))
	if !IsKind(err, InvalidTransition) {
		t.Error("IsKind should see through wrapping")
	}
	if IsKind(err, NotFound) {
		t.Error("IsKind matched the wrong kind")
	}
}

func TestMessageHidesInternals(t *testing.T) {
	internal := Wrap(Internal, "store failed", errors.New("connection refused"))
	if got := Message(internal); got != "erro interno, tente novamente" {
		t.Errorf("internal message leaked: %q", got)
	}

	visible := New(Forbidden, "Pedido não pertence a este motoqueiro")
	if got := Message(visible); got != "Pedido não pertence a este motoqueiro" {
		t.Errorf("Message() = %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("row not found")
	err := Wrap(NotFound, "motoqueiro", inner)
	if !errors.Is(err, inner) {
		t.Error("Unwrap chain broken")
	}
}
