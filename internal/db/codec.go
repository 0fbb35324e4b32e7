package db

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// encodeDraws packs [chain][iteration][parameter] draws into nested
// protobuf ListValues
func encodeDraws(draws [][][]float64) ([]byte, error) {
	outer := &structpb.ListValue{Values: make([]*structpb.Value, len(draws))}
	for c, ch := range draws {
		chain := &structpb.ListValue{Values: make([]*structpb.Value, len(ch))}
		for i, d := range ch {
			vec := &structpb.ListValue{Values: make([]*structpb.Value, len(d))}
			for j, v := range d {
				vec.Values[j] = structpb.NewNumberValue(v)
			}
			chain.Values[i] = structpb.NewListValue(vec)
		}
		outer.Values[c] = structpb.NewListValue(chain)
	}

	b, err := proto.Marshal(outer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draws: %w", err)
	}
	return b, nil
}

func decodeDraws(b []byte) ([][][]float64, error) {
	var outer structpb.ListValue
	if err := proto.Unmarshal(b, &outer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draws: %w", err)
	}

	draws := make([][][]float64, len(outer.GetValues()))
	for c, cv := range outer.GetValues() {
		chain := cv.GetListValue()
		if chain == nil {
			return nil, fmt.Errorf("chain %d is not a list", c)
		}
		draws[c] = make([][]float64, len(chain.GetValues()))
		for i, dv := range chain.GetValues() {
			vec := dv.GetListValue()
			if vec == nil {
				return nil, fmt.Errorf("draw %d of chain %d is not a list", i, c)
			}
			draws[c][i] = make([]float64, len(vec.GetValues()))
			for j, v := range vec.GetValues() {
				draws[c][i][j] = v.GetNumberValue()
			}
		}
	}
	return draws, nil
}

// artifact is the row form of a fitted model
type artifact struct {
	ID            string
	Snapshot      model.Snapshot
	Metadata      []byte
	Draws         []byte
	Chains        int
	DrawsPerChain int
}

func newArtifact(fm *model.FittedModel) (*artifact, error) {
	snap := fm.Snapshot()
	meta, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model metadata: %w", err)
	}
	draws, err := encodeDraws(snap.Draws)
	if err != nil {
		return nil, err
	}
	return &artifact{
		ID:            snap.ID,
		Snapshot:      snap,
		Metadata:      meta,
		Draws:         draws,
		Chains:        fm.Chains(),
		DrawsPerChain: fm.DrawsPerChain(),
	}, nil
}

// decodeModel rebuilds a fitted model from the stored columns
func decodeModel(id string, meta, drawsPB []byte) (*model.FittedModel, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(meta, &snap); err != nil {
		return nil, fmt.Errorf("model %s: failed to unmarshal metadata: %w", id, err)
	}
	draws, err := decodeDraws(drawsPB)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}
	snap.Draws = draws

	fm, err := model.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("model %s is corrupt: %w", id, err)
	}
	return fm, nil
}
