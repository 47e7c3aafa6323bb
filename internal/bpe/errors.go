package bpe

import "errors"

var (
	// ErrEmptyCorpus is returned when training (or a compression measurement)
	// sees no usable words.
	ErrEmptyCorpus = errors.New("corpus contains no usable words")

	// ErrVocabularyCeilingExceeded is returned before training starts when the
	// requested vocabulary size is not below the configured ceiling.
	ErrVocabularyCeilingExceeded = errors.New("vocabulary size exceeds ceiling")

	// ErrInvalidOptions wraps every other rejected training option.
	ErrInvalidOptions = errors.New("invalid training options")

	// ErrUnknownSymbol marks a symbol outside the trained vocabulary. Encode
	// never returns it; it substitutes <unk> and counts the event instead.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrInvalidTokenID is returned by Decode and IDToSymbol for ids outside
	// the vocabulary. Decode rejects the whole call.
	ErrInvalidTokenID = errors.New("invalid token id")

	// ErrCompressionBelowThreshold is the advisory result of a compression
	// check that did not reach its threshold.
	ErrCompressionBelowThreshold = errors.New("compression ratio below threshold")

	// ErrTrainingAborted is returned together with a usable partial model when
	// the training context is cancelled between merges.
	ErrTrainingAborted = errors.New("training aborted")

	// ErrInvalidModel is returned when persisted vocabulary/merge data does not
	// describe a consistent model.
	ErrInvalidModel = errors.New("invalid model")
)
