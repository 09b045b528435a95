// Command repeatq-init creates a randomly initialized
// model checkpoint for a vocabulary.
package main

import (
	"flag"

	"github.com/NUS-IDS/ranlp21-fiqv/dataset"
	"github.com/NUS-IDS/ranlp21-fiqv/qnet"
	"github.com/unixpickle/anyvec/anyvec64"
	"k8s.io/klog/v2"
)

func main() {
	var vocabPath, featuresPath, configPath, vectorsPath, outPath string
	klog.InitFlags(nil)
	flag.StringVar(&vocabPath, "vocab", "vocabulary.txt", "word vocabulary file")
	flag.StringVar(&featuresPath, "features", "feature_vocabulary.txt",
		"POS and entity tag vocabulary file")
	flag.StringVar(&configPath, "config", "", "JSON configuration (optional)")
	flag.StringVar(&vectorsPath, "vectors", "", "pretrained word vectors (optional)")
	flag.StringVar(&outPath, "out", "model.bin", "output checkpoint")
	flag.Parse()
	defer klog.Flush()

	vocab, err := dataset.LoadVocabulary(vocabPath)
	if err != nil {
		klog.Exitf("Vocabulary: %v", err)
	}
	tags, err := dataset.LoadFeatureVocabulary(featuresPath)
	if err != nil {
		klog.Exitf("Feature vocabulary: %v", err)
	}
	terminator, err := vocab.TerminatorID()
	if err != nil {
		klog.Exitf("Vocabulary: %v", err)
	}

	cfg := qnet.DefaultConfig()
	if configPath != "" {
		cfg, err = qnet.LoadConfig(configPath)
		if err != nil {
			klog.Exitf("Config: %v", err)
		}
	}
	cfg = cfg.WithVocabulary(vocab.Len(), terminator).
		WithTags(tags.POS.Len(), tags.NER.Len())

	model, err := qnet.NewModel(anyvec64.DefaultCreator{}, cfg)
	if err != nil {
		klog.Exitf("Create model: %v", err)
	}
	if vectorsPath != "" {
		if err := model.LoadWordVectors(vectorsPath); err != nil {
			klog.Exitf("Word vectors: %v", err)
		}
	}
	if err := model.Save(outPath); err != nil {
		klog.Exitf("Save: %v", err)
	}
	klog.Infof("Saved model with %d words to %s.", vocab.Len(), outPath)
}
