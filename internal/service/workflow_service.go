package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/psds-microservice/agri-support-service/internal/advisory"
	"github.com/psds-microservice/agri-support-service/internal/authz"
	"github.com/psds-microservice/agri-support-service/internal/classifier"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

const (
	topicSeparator    = " • "
	noProbabilities   = "- (no probabilities provided)"
	adviceUnavailable = "(AI advice not available)"
	topGuesses        = 3
)

// WorkflowService turns a classified leaf photo into a filed request.
// Upstream calls happen before any write and never under a row lock.
type WorkflowService struct {
	classifier classifier.Classifier
	advisor    advisory.Advisor
	requests   *RequestService
}

func NewWorkflowService(c classifier.Classifier, a advisory.Advisor, requests *RequestService) *WorkflowService {
	return &WorkflowService{classifier: c, advisor: a, requests: requests}
}

type PredictInput struct {
	Crop     string
	State    string
	District string
}

// PredictAndCreateResult carries whatever the pipeline produced. When the
// classifier fails only Prediction is set.
type PredictAndCreateResult struct {
	Prediction *classifier.Prediction
	Advice     *string
	Topic      *string
	Request    *model.SupportRequest
}

type ForwardToOfficerInput struct {
	Crop        string
	DiseaseName string
	Advice      string
	State       string
	District    string
}

// Predict classifies the image. Failures come back inside the prediction.
func (s *WorkflowService) Predict(ctx context.Context, crop string, image *model.Upload) *classifier.Prediction {
	crop = strings.TrimSpace(crop)
	if crop == "" {
		return classifier.ErrorPrediction("crop is required")
	}
	if image.Empty() {
		return classifier.ErrorPrediction("image is required")
	}
	pred, _ := s.classify(ctx, crop, image)
	return pred
}

// classify applies the classifier call-site policy: any failure becomes an
// error prediction and ok=false.
func (s *WorkflowService) classify(ctx context.Context, crop string, image *model.Upload) (*classifier.Prediction, bool) {
	pred, err := s.classifier.Classify(ctx, crop, image)
	if err != nil {
		log.Printf("workflow: classifier: %v", err)
		if pred == nil || pred.Error == "" {
			return classifier.ErrorPrediction(errs.Message(err)), false
		}
		return pred, false
	}
	if pred == nil {
		return classifier.ErrorPrediction("classifier returned no prediction"), false
	}
	if pred.Error != "" {
		return pred, false
	}
	return pred, true
}

// advise applies the advisory call-site policy: failures are logged and
// degrade to nil.
func (s *WorkflowService) advise(ctx context.Context, crop, label string) *string {
	if s.advisor == nil {
		return nil
	}
	answer, err := s.advisor.Advise(ctx, crop, label)
	if err != nil {
		log.Printf("workflow: advisory for %s/%s: %v", crop, label, err)
		return nil
	}
	return &answer
}

// Advice asks the advisory service directly; nil when it is unavailable.
func (s *WorkflowService) Advice(ctx context.Context, crop, disease string) *string {
	return s.advise(context.WithoutCancel(ctx), strings.TrimSpace(crop), strings.TrimSpace(disease))
}

// PredictAndCreate classifies the photo, fetches advice and files a request
// describing both. A classifier failure stops the pipeline before anything
// is written; an advisory failure only drops the advice.
func (s *WorkflowService) PredictAndCreate(ctx context.Context, actor *model.Identity, in PredictInput, image *model.Upload) (*PredictAndCreateResult, error) {
	if err := requireCaller(actor); err != nil {
		return nil, err
	}
	if !authz.CanCreate(actor) {
		return nil, errs.Forbidden("only requesters can file requests")
	}
	crop := strings.TrimSpace(in.Crop)
	if crop == "" {
		return nil, errs.Validation("crop is required")
	}
	if image.Empty() {
		return nil, errs.Validation("image is required")
	}
	if err := validateLocation(in.State, in.District); err != nil {
		return nil, err
	}
	// a disconnecting client must not abort the pipeline half way
	ctx = context.WithoutCancel(ctx)

	pred, ok := s.classify(ctx, crop, image)
	if !ok {
		return &PredictAndCreateResult{Prediction: pred}, nil
	}
	label := pred.Label()
	topic := crop + topicSeparator + label
	advice := s.advise(ctx, crop, label)

	req, err := s.requests.CreateWithImage(ctx, actor, CreateInput{
		Category:    topic,
		Description: ComposeDescription(crop, label, pred.TopK, advice),
		State:       in.State,
		District:    in.District,
	}, image)
	if err != nil {
		return nil, fmt.Errorf("predict and create: %w", err)
	}
	return &PredictAndCreateResult{Prediction: pred, Advice: advice, Topic: &topic, Request: req}, nil
}

// ForwardToOfficer files a request from advice the requester already has.
func (s *WorkflowService) ForwardToOfficer(ctx context.Context, actor *model.Identity, in ForwardToOfficerInput, image *model.Upload) (*model.SupportRequest, error) {
	crop := strings.TrimSpace(in.Crop)
	disease := strings.TrimSpace(in.DiseaseName)
	advice := strings.TrimSpace(in.Advice)
	if err := requireCaller(actor); err != nil {
		return nil, err
	}
	if crop == "" || disease == "" || advice == "" {
		return nil, errs.Validation("crop, diseaseName and advice are required")
	}
	if image.Empty() {
		return nil, errs.Validation("image is required")
	}
	return s.requests.CreateWithImage(context.WithoutCancel(ctx), actor, CreateInput{
		Category:    crop + topicSeparator + disease,
		Description: disease + "\n\n" + advice,
		State:       in.State,
		District:    in.District,
	}, image)
}

// ComposeDescription renders the request body of a classified photo.
func ComposeDescription(crop, label string, ranked []classifier.TopK, advice *string) string {
	var guesses []string
	for i, t := range ranked {
		if i == topGuesses {
			break
		}
		line := "- " + t.Label
		if t.Score != nil {
			line += fmt.Sprintf(" (%.2f%%)", *t.Score*100)
		}
		guesses = append(guesses, line)
	}
	top := noProbabilities
	if len(guesses) > 0 {
		top = strings.Join(guesses, "\n")
	}
	adviceText := adviceUnavailable
	if advice != nil {
		adviceText = *advice
	}

	var b strings.Builder
	b.WriteString("Crop: " + crop + "\n")
	b.WriteString("Most probable disease: " + label + "\n\n")
	b.WriteString("Top 3 guesses:\n" + top + "\n\n")
	b.WriteString("AI advice:\n" + adviceText)
	return b.String()
}
