// Package liverrisk predicts liver-cancer risk from clinical features with a
// small dense neural network.
//
// The module is a batch pipeline plus an inference API. The pipeline reads a
// synthetic SQL dump, fits a column preprocessor, tunes the network with
// Hyperband, evaluates the best model on a held-out split and writes every
// artifact to disk. The API loads those artifacts once and answers risk
// queries over HTTP.
//
// # Packages
//
//   - dataset: SQL dump extraction, the string Frame, CSV I/O and splits
//   - preprocessing: imputers, scaler, one-hot encoder and ColumnTransformer
//   - nn: Dense/Dropout layers, Adam, binary cross-entropy training and callbacks
//   - tuning: search space, Hyperband schedule, concurrent trials and the trial store
//   - metrics: accuracy, ROC AUC, classification report, confusion heatmap
//   - pipeline: the extract, preprocess, train and evaluate stages
//   - server: gin HTTP API with /predict and /health
//   - internal/config: YAML, .env and environment configuration
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Quick Start
//
//	liverrisk init-config liverrisk.yaml
//	liverrisk all --config liverrisk.yaml
//	liverrisk serve --port 5000
//
// A prediction request:
//
//	curl -X POST localhost:5000/predict \
//	    -H 'Content-Type: application/json' \
//	    -d '{"age": 63, "gender": "Male", "bmi": 29.1, "hepatitis_b": 1}'
//
//	{"mensaje_accion":"Alerta: Cita clínica inmediata.","porcentaje_riesgo":71.42}
//
// Missing features are imputed with the statistics learned at preprocessing
// time.
package liverrisk
