package ml

import (
	"encoding/json"
	"fmt"
)

func NewModel(modelType string, params Params, seed int64) (Classifier, error) {
	switch modelType {
	case ModelDecisionTree:
		return NewDecisionTree(TreeParams{
			MaxDepth:        params.MaxDepth,
			MinSamplesSplit: params.MinSamplesSplit,
			Seed:            seed,
		}), nil
	case ModelRandomForest:
		return NewRandomForest(ForestParams{
			NEstimators:     params.NEstimators,
			MaxDepth:        params.MaxDepth,
			MinSamplesSplit: params.MinSamplesSplit,
			Seed:            seed,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func LoadModel(modelType string, payload []byte) (Classifier, error) {
	switch modelType {
	case ModelDecisionTree:
		model := &DecisionTree{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	case ModelRandomForest:
		model := &RandomForest{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func ModelType(model Classifier) (string, error) {
	switch model.(type) {
	case *DecisionTree:
		return ModelDecisionTree, nil
	case *RandomForest:
		return ModelRandomForest, nil
	default:
		return "", fmt.Errorf("unsupported model %T", model)
	}
}
