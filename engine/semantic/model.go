package semantic

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/WessleyAI/ragqa/engine/domain"
)

func qaPayload(r domain.QARecord) map[string]*pb.Value {
	return map[string]*pb.Value{
		domain.FieldInstruction: pb.NewValueString(r.Instruction),
		domain.FieldOutput:      pb.NewValueString(r.Output),
	}
}

// searchResult converts a scored point. Qdrant's Euclid score is the plain
// distance; the coordinator's threshold is on squared L2, so it is squared here.
func searchResult(p *pb.ScoredPoint) domain.SearchResult {
	payload := p.GetPayload()
	score := p.GetScore()
	return domain.SearchResult{
		Distance:    score * score,
		Instruction: payload[domain.FieldInstruction].GetStringValue(),
		Output:      payload[domain.FieldOutput].GetStringValue(),
	}
}
