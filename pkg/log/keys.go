package log

// パイプライン共通のキー。slog / zerolog どちらでも同じ名前で出力される。
const (
	ComponentKey = "ml.component"   // dataset, preprocessing, nn, tuning, server
	OperationKey = "ml.operation"   // OperationFit, OperationSearch
	PhaseKey     = "ml.phase"       // PhasePreprocessing, PhaseTesting
	ModelNameKey = "model.name"     // Network, ColumnTransformer, Hyperband
	StageKey     = "pipeline.stage" // extract, preprocess, train, evaluate
)

// データ
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	SkippedKey   = "data.skipped" // SQLダンプで読み飛ばした行
	PathKey      = "data.path"
	BatchSizeKey = "data.batch_size"
)

// 学習と評価の指標。ValXxxKey は検証データ上の値。
const (
	EpochKey       = "training.epoch"
	LossKey        = "metrics.loss"
	AccuracyKey    = "metrics.accuracy"
	AUCKey         = "metrics.auc"
	ValLossKey     = "metrics.val_loss"
	ValAccuracyKey = "metrics.val_accuracy"
	ValAUCKey      = "metrics.val_auc"
	DurationMsKey  = "perf.duration_ms"
)

// Hyperband
const (
	TrialIDKey     = "tuning.trial_id"
	BracketKey     = "tuning.bracket"
	RoundKey       = "tuning.round"
	ObjectiveKey   = "tuning.objective"
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// 推論
const (
	ConfidenceKey = "preds.confidence" // 陽性確率
	ThresholdKey  = "preds.threshold"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
	SuggestionKey     = "error.suggestion" // cockroachdb/errors のヒント
	ErrorCodeKey      = "error.code"
)

const (
	OperationFit    = "fit"
	OperationSearch = "search"

	PhasePreprocessing = "preprocessing"
	PhaseTesting       = "testing"

	ErrorModelUnavailable = "MODEL_UNAVAILABLE"
)
