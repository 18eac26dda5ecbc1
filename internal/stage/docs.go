package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/prompt"
)

// Feedback-log labels of the two human-reviewed generations.
const (
	storyLabel  = "Story Generation"
	designLabel = "Design"
)

// CollectRequirements asks the reviewer for requirements unless the run was
// seeded with them.
func (e *Engine) CollectRequirements(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if strings.TrimSpace(s.Requirements) != "" {
		return s, nil
	}
	req, err := e.reviewer.Requirements(ctx)
	if err != nil {
		return s, fmt.Errorf("collect requirements: %w", err)
	}
	out := s.Clone()
	out.Requirements = strings.TrimSpace(req)
	return out, nil
}

// GenerateStory writes or revises the user story.
func (e *Engine) GenerateStory(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if strings.TrimSpace(s.Requirements) == "" {
		e.logf("no requirements; skipping story generation")
		return s, nil
	}
	attempt := s.StoryAttempts + 1
	e.logf("generating user story (attempt %d)", attempt)

	feedback := s.UserStoryFeedback
	if feedback == pipeline.NoStoryFeedback || feedback == pipeline.StoryApproved {
		feedback = ""
	}
	out := s.Clone()
	out.StoryAttempts = attempt

	system, user, err := e.prompts.Build(prompt.Story, prompt.Vars{
		"requirements":   s.Requirements,
		"previous_story": s.UserStory,
		"story_feedback": human.CleanFeedback(feedback),
	})
	if err == nil {
		var story string
		story, err = e.models.General.Generate(ctx, system, user)
		if err == nil {
			out.UserStory = story
			out.StoryVerdict = pipeline.Revise
			e.capture(pipeline.StageGenerateStory, attempt, story)
			return out, nil
		}
	}
	e.log.Warn("story generation failed", "attempt", attempt, "error", err)
	out.StoryVerdict = pipeline.Revise
	return out.AppendFeedback(errorEntry(storyLabel, attempt, err)), nil
}

// ReviewStory asks the reviewer to approve the user story.
func (e *Engine) ReviewStory(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if marker, failed := pendingFailure(s, storyLabel, s.StoryAttempts); failed {
		return s, e.confirmRetry(ctx, pipeline.StageReviewStory, "Story", s.StoryAttempts, marker)
	}
	if strings.TrimSpace(s.UserStory) == "" {
		return s, nil
	}
	resp, err := e.reviewer.Review(ctx, human.Request{
		Stage:    pipeline.StageReviewStory,
		Title:    fmt.Sprintf("User Story (attempt %d)", s.StoryAttempts),
		Artifact: s.UserStory,
	})
	if err != nil {
		return s, fmt.Errorf("story review: %w", err)
	}

	out := s.Clone()
	if resp.Approved {
		e.logf("user story approved")
		out.StoryVerdict = pipeline.Approve
		out.UserStoryFeedback = pipeline.StoryApproved
		return out, nil
	}
	fb := human.CleanFeedback(resp.Feedback)
	if fb == "" {
		fb = "Changes requested"
	}
	e.logf("user story needs revision")
	out.StoryVerdict = pipeline.Revise
	out.UserStoryFeedback = fb
	return out.AppendFeedback("[Story Review]: " + fb), nil
}

// DraftDesign writes or revises the design document.
func (e *Engine) DraftDesign(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if strings.TrimSpace(s.UserStory) == "" {
		e.logf("no user story; skipping design")
		return s, nil
	}
	attempt := s.DesignAttempts + 1
	e.logf("drafting design document (attempt %d)", attempt)

	feedback := s.DesignFeedback
	if feedback == pipeline.NoDesignFeedback {
		feedback = ""
	}
	out := s.Clone()
	out.DesignAttempts = attempt
	out.DesignVerdict = pipeline.Revise

	system, user, err := e.prompts.Build(prompt.Design, prompt.Vars{
		"user_story":      s.UserStory,
		"design_feedback": feedback,
	})
	if err == nil {
		var doc string
		doc, err = e.models.Docs.Generate(ctx, system, user)
		if err == nil {
			out.DesignDoc = doc
			e.capture(pipeline.StageDraftDesign, attempt, doc)
			return out, nil
		}
	}
	e.log.Warn("design generation failed", "attempt", attempt, "error", err)
	return out.AppendFeedback(errorEntry(designLabel, attempt, err)), nil
}

// ReviewDesign asks the reviewer to approve the design document. Rejection
// feedback accumulates in DesignFeedback.
func (e *Engine) ReviewDesign(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if marker, failed := pendingFailure(s, designLabel, s.DesignAttempts); failed {
		return s, e.confirmRetry(ctx, pipeline.StageReviewDesign, "Design", s.DesignAttempts, marker)
	}
	if strings.TrimSpace(s.DesignDoc) == "" {
		return s, nil
	}
	resp, err := e.reviewer.Review(ctx, human.Request{
		Stage:    pipeline.StageReviewDesign,
		Title:    fmt.Sprintf("Design Document (attempt %d)", s.DesignAttempts),
		Artifact: s.DesignDoc,
	})
	if err != nil {
		return s, fmt.Errorf("design review: %w", err)
	}

	out := s.Clone()
	if resp.Approved {
		e.logf("design approved")
		out.DesignVerdict = pipeline.Approve
		return out, nil
	}
	fb := human.CleanFeedback(resp.Feedback)
	if fb == "" {
		fb = "Changes requested"
	}
	e.logf("design needs revision")
	entry := "[Design Review]: " + fb
	out.DesignVerdict = pipeline.Revise
	if out.DesignFeedback == pipeline.NoDesignFeedback || out.DesignFeedback == "" {
		out.DesignFeedback = entry
	} else {
		out.DesignFeedback += "\n" + entry
	}
	return out.AppendFeedback(entry), nil
}
