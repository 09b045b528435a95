// Command repeatq-decode rewrites the questions of a
// dataset with beam search.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/NUS-IDS/ranlp21-fiqv/dataset"
	"github.com/NUS-IDS/ranlp21-fiqv/predstore"
	"github.com/NUS-IDS/ranlp21-fiqv/qnet"
	"k8s.io/klog/v2"
)

func main() {
	var modelPath, vocabPath, featuresPath, examplesPath, outPath, dbPath string
	var beamSize, batchSize, collateNgrams int
	klog.InitFlags(nil)
	flag.StringVar(&modelPath, "model", "model.bin", "model checkpoint")
	flag.StringVar(&vocabPath, "vocab", "vocabulary.txt", "word vocabulary file")
	flag.StringVar(&featuresPath, "features", "feature_vocabulary.txt",
		"POS and entity tag vocabulary file")
	flag.StringVar(&examplesPath, "examples", "test.json", "examples to decode")
	flag.StringVar(&outPath, "out", "predictions.txt", "output file, one question per line")
	flag.StringVar(&dbPath, "db", "", "SQLite database to record predictions in (optional)")
	flag.IntVar(&beamSize, "beam", 0, "beam size (default from the model config)")
	flag.IntVar(&batchSize, "batch", 0, "batch size (default from the model config)")
	flag.IntVar(&collateNgrams, "collate-ngrams", 4,
		"collapse repeated n-grams up to this size (0 to disable)")
	flag.Parse()
	defer klog.Flush()

	model, err := qnet.LoadModel(modelPath)
	if err != nil {
		klog.Exitf("Model: %v", err)
	}
	if beamSize == 0 {
		beamSize = model.Config.BeamSize
	}
	if batchSize == 0 {
		batchSize = model.Config.BatchSize
	}
	featurizer, raws := loadData(vocabPath, featuresPath, examplesPath)

	var examples []*repeatq.Example
	for i, raw := range raws {
		ex, err := featurizer.Example(raw)
		if err != nil {
			klog.Exitf("Example %d: %v", i, err)
		}
		examples = append(examples, ex)
	}

	decoder := model.Decoder()
	var preds []predstore.Prediction
	for i, b := range dataset.Batches(examples, batchSize) {
		hyps, err := decoder.BeamSearch(b, beamSize)
		if err != nil {
			klog.Exitf("Batch %d: %v", i, err)
		}
		for _, h := range hyps {
			idx := len(preds)
			preds = append(preds, predstore.Prediction{
				ExampleIndex: idx,
				BaseQuestion: raws[idx].BaseQuestion,
				Prediction:   dataset.Detokenize(featurizer.Words, h.Tokens, collateNgrams),
				Target:       raws[idx].Target,
				Score:        h.Score,
			})
		}
		klog.V(1).Infof("Decoded batch %d (%d examples).", i, b.NumExamples())
	}

	if err := writePredictions(outPath, preds); err != nil {
		klog.Exitf("Write predictions: %v", err)
	}
	klog.Infof("Wrote %d predictions to %s.", len(preds), outPath)

	if dbPath != "" {
		recordPredictions(dbPath, modelPath, beamSize, preds)
	}
}

func loadData(vocabPath, featuresPath,
	examplesPath string) (*dataset.Featurizer, []*dataset.RawExample) {
	vocab, err := dataset.LoadVocabulary(vocabPath)
	if err != nil {
		klog.Exitf("Vocabulary: %v", err)
	}
	tags, err := dataset.LoadFeatureVocabulary(featuresPath)
	if err != nil {
		klog.Exitf("Feature vocabulary: %v", err)
	}
	raws, err := dataset.LoadExamples(examplesPath)
	if err != nil {
		klog.Exitf("Examples: %v", err)
	}
	return &dataset.Featurizer{Words: vocab, Tags: tags}, raws
}

func writePredictions(path string, preds []predstore.Prediction) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, p := range preds {
		fmt.Fprintln(w, p.Prediction)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func recordPredictions(dbPath, modelPath string, beamSize int,
	preds []predstore.Prediction) {
	store, err := predstore.NewStore(dbPath)
	if err != nil {
		klog.Exitf("Store: %v", err)
	}
	defer store.Close()
	run, err := store.StartRun(modelPath, beamSize)
	if err != nil {
		klog.Exitf("Store: %v", err)
	}
	if err := store.Record(run.ID, preds); err != nil {
		klog.Exitf("Store: %v", err)
	}
	klog.Infof("Recorded run %s in %s.", run.ID, dbPath)
}
