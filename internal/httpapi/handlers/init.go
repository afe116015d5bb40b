package handlers

import (
	"context"
	"fmt"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/assembler"
)

// GetInitInput addresses a representation's init segment.
type GetInitInput struct {
	ID   string `path:"id" doc:"Session id"`
	Repr string `path:"repr" doc:"Representation id"`
}

// GetInitOutput carries the rendered init segment.
type GetInitOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetInit renders the fMP4 initialization segment for a representation.
// §8 property 7 requires two requests for the same representation to
// produce byte-identical output, which holds here since RenderInit is a
// pure function of the already-planned Representation.
func (h *Handlers) GetInit(ctx context.Context, input *GetInitInput) (*GetInitOutput, error) {
	sess, err := h.lookupLive(input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}
	repr, ok := sess.Representations[input.Repr]
	if !ok {
		return nil, toHumaError(apperr.New(apperr.KindUnknownRepresentation, fmt.Sprintf("no representation %q", input.Repr)))
	}

	body, err := assembler.RenderInit(repr)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &GetInitOutput{ContentType: contentTypeMP4, Body: body}, nil
}
