// Command repeatq-score measures the likelihood a model
// assigns to the target questions of a dataset.
package main

import (
	"flag"
	"fmt"
	"math"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/NUS-IDS/ranlp21-fiqv/dataset"
	"github.com/NUS-IDS/ranlp21-fiqv/qnet"
	"k8s.io/klog/v2"
)

func main() {
	var modelPath, vocabPath, featuresPath, examplesPath string
	var batchSize int
	klog.InitFlags(nil)
	flag.StringVar(&modelPath, "model", "model.bin", "model checkpoint")
	flag.StringVar(&vocabPath, "vocab", "vocabulary.txt", "word vocabulary file")
	flag.StringVar(&featuresPath, "features", "feature_vocabulary.txt",
		"POS and entity tag vocabulary file")
	flag.StringVar(&examplesPath, "examples", "dev.json", "examples with targets")
	flag.IntVar(&batchSize, "batch", 0, "batch size (default from the model config)")
	flag.Parse()
	defer klog.Flush()

	model, err := qnet.LoadModel(modelPath)
	if err != nil {
		klog.Exitf("Model: %v", err)
	}
	if batchSize == 0 {
		batchSize = model.Config.BatchSize
	}
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
	featurizer := &dataset.Featurizer{Words: vocab, Tags: tags}

	var examples []*repeatq.Example
	for i, raw := range raws {
		if raw.Target == "" {
			continue
		}
		ex, err := featurizer.Example(raw)
		if err != nil {
			klog.Exitf("Example %d: %v", i, err)
		}
		examples = append(examples, ex)
	}
	if len(examples) == 0 {
		klog.Exitf("No examples with targets in %s.", examplesPath)
	}

	decoder := model.Decoder()
	var total float64
	var count int
	for i, b := range dataset.Batches(examples, batchSize) {
		u, err := decoder.Unroll(b)
		if err != nil {
			klog.Exitf("Batch %d: %v", i, err)
		}
		mean, n := repeatq.TargetNLL(u, b)
		total += mean * float64(n)
		count += n
	}
	if count == 0 {
		klog.Exitf("No target tokens in %s.", examplesPath)
	}
	nll := total / float64(count)
	fmt.Printf("examples=%d tokens=%d nll=%f perplexity=%f\n", len(examples), count,
		nll, math.Exp(nll))
}
