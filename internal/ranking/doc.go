// Package ranking provides the scoring core for feed item ranking:
// lexical BM25 scoring, recency decay, and the fusion of lexical, LLM,
// and boost signals into one final score per item.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	cal, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default calibration", "error", err)
//	}
//
//	// Score a batch lexically
//	idx := ranking.NewBM25Index()
//	idx.AddDocuments(docs)
//	scores := ranking.NormalizeScores(idx.Score(cfg.Query))
//
//	// Fuse signals into a final score
//	components := ranking.Fuse(ranking.FuseInput{
//		Title:       item.Title,
//		ScanText:    item.ScanText(),
//		ContentText: item.BodyText(),
//		BM25:        scores[item.ID],
//		LLM:         judgment, // may be nil
//	}, cfg, cal.Vocabulary)
//
// Scoring Functions:
//
// All component scores are normalized to bounded ranges before fusion:
// BM25 scores to [0, 1] within the batch, recency to [0.2, 1.0], and the
// LLM composite to [0, 1]. The final score is a category-weighted linear
// combination multiplied by a single boost tier.
//
// Calibration:
//
// The calibration system allows deploy-time tuning of category weights and
// boost vocabularies via JSON configuration files loaded at startup. This
// enables tuning without code changes (but requires a restart to pick up
// new configuration). See configs/ranking.calibration.json for the default
// configuration.
package ranking
