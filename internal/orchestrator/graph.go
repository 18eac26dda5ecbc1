package orchestrator

import (
	"fmt"

	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/router"
	"github.com/lucasnoah/sdlcfactory/internal/stage"
)

// Node is one stage in the graph. Exactly one of Next and Route is set:
// Next for an unconditional edge, Route for a conditional one.
type Node struct {
	Run   stage.Func
	Next  pipeline.StageID
	Route router.Func
}

// successor resolves the node's outgoing edge for s.
func (n Node) successor(s pipeline.State) router.Decision {
	if n.Route != nil {
		return n.Route(s)
	}
	return router.Decision{Next: n.Next}
}

// Graph is the stage topology a run walks.
type Graph struct {
	Entry pipeline.StageID
	Nodes map[pipeline.StageID]Node
}

// DefaultGraph wires the stage functions into the standard topology:
//
//	collect-requirements → generate-story → review-story ⇄ generate-story
//	review-story → draft-design → review-design ⇄ draft-design
//	review-design → generate-code → collect-code → review-code
//	review-code → security-review | generate-code
//	security-review → generate-tests | generate-code
//	generate-tests → review-tests → run-qa | generate-tests
//	run-qa → end | generate-code
func DefaultGraph(funcs map[pipeline.StageID]stage.Func, caps router.Caps) *Graph {
	caps = caps.WithDefaults()
	node := func(id pipeline.StageID, next pipeline.StageID) Node {
		return Node{Run: funcs[id], Next: next}
	}
	routed := func(id pipeline.StageID, route router.Func) Node {
		return Node{Run: funcs[id], Route: route}
	}
	return &Graph{
		Entry: pipeline.StageCollectRequirements,
		Nodes: map[pipeline.StageID]Node{
			pipeline.StageCollectRequirements: node(pipeline.StageCollectRequirements, pipeline.StageGenerateStory),
			pipeline.StageGenerateStory:       node(pipeline.StageGenerateStory, pipeline.StageReviewStory),
			pipeline.StageReviewStory:         routed(pipeline.StageReviewStory, router.AfterStory),
			pipeline.StageDraftDesign:         node(pipeline.StageDraftDesign, pipeline.StageReviewDesign),
			pipeline.StageReviewDesign:        routed(pipeline.StageReviewDesign, router.AfterDesign),
			pipeline.StageGenerateCode:        node(pipeline.StageGenerateCode, pipeline.StageCollectCode),
			pipeline.StageCollectCode:         node(pipeline.StageCollectCode, pipeline.StageReviewCode),
			pipeline.StageReviewCode:          routed(pipeline.StageReviewCode, caps.AfterCodeReview),
			pipeline.StageSecurityReview:      routed(pipeline.StageSecurityReview, caps.AfterSecurity),
			pipeline.StageGenerateTests:       node(pipeline.StageGenerateTests, pipeline.StageReviewTests),
			pipeline.StageReviewTests:         routed(pipeline.StageReviewTests, caps.AfterTestReview),
			pipeline.StageRunQA:               routed(pipeline.StageRunQA, caps.AfterQA),
		},
	}
}

// Validate checks that the entry exists, every node has a function and
// exactly one kind of edge, and every unconditional successor exists.
func (g *Graph) Validate() error {
	if _, ok := g.Nodes[g.Entry]; !ok {
		return fmt.Errorf("%w: entry %q", ErrUnknownStage, g.Entry)
	}
	for id, n := range g.Nodes {
		if n.Run == nil {
			return fmt.Errorf("stage %q has no function", id)
		}
		hasNext := n.Next != ""
		if hasNext == (n.Route != nil) {
			return fmt.Errorf("stage %q must have exactly one of Next or Route", id)
		}
		if hasNext && n.Next != pipeline.Terminal {
			if _, ok := g.Nodes[n.Next]; !ok {
				return fmt.Errorf("%w: %q → %q", ErrUnknownStage, id, n.Next)
			}
		}
	}
	return nil
}

// automated reports whether a stage belongs to the segment after design
// approval, where no human gate bounds the loop.
func automated(id pipeline.StageID) bool {
	switch id {
	case pipeline.StageCollectRequirements, pipeline.StageGenerateStory, pipeline.StageReviewStory,
		pipeline.StageDraftDesign, pipeline.StageReviewDesign:
		return false
	}
	return true
}
