/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/dfpath"
	"d7y.io/xray/pkg/digest"
	"d7y.io/xray/pkg/limitreader"
	"d7y.io/xray/pkg/objectstorage"
	"d7y.io/xray/pkg/retry"
	"d7y.io/xray/pkg/types"
	"d7y.io/xray/trainer/config"
	"d7y.io/xray/trainer/dataset"
	"d7y.io/xray/trainer/ingest"
	"d7y.io/xray/trainer/loader"
	"d7y.io/xray/trainer/metrics"
	"d7y.io/xray/trainer/model"
	"d7y.io/xray/trainer/split"
	"d7y.io/xray/trainer/storage"
	"d7y.io/xray/trainer/training"
	"d7y.io/xray/trainer/transform"
)

const (
	// metricsShutdownTimeout is the time to wait for the metrics server to stop.
	metricsShutdownTimeout = 5 * time.Second

	// uploadInitBackoff is the initial delay in seconds between upload attempts.
	uploadInitBackoff = 0.5

	// uploadMaxBackoff is the maximum delay in seconds between upload attempts.
	uploadMaxBackoff = 5

	// uploadMaxAttempts is the number of upload attempts.
	uploadMaxAttempts = 3

	// EvaluationObjectName is the object name of the evaluation records of a run.
	EvaluationObjectName = storage.EvaluationFilePrefix + "." + storage.CSVFileExt
)

var tracer = otel.Tracer("trainer")

// Option is a functional option for configuring the server.
type Option func(s *Server)

// WithObjectStorage publishes the checkpoint to the object storage.
func WithObjectStorage(o objectstorage.ObjectStorage) Option {
	return func(s *Server) {
		s.objectStorage = o
	}
}

// WithRunID sets the id of the run.
func WithRunID(runID string) Option {
	return func(s *Server) {
		s.runID = runID
	}
}

type Server struct {
	// Server configuration.
	config *config.Config

	// Metrics server.
	metricsServer *http.Server

	// Storage interface.
	storage storage.Storage

	// Object storage interface, nil when publishing is disabled.
	objectStorage objectstorage.ObjectStorage

	// Id of the training run.
	runID string

	// Directory of evaluation records and split locks.
	dataDir string

	// Result of the training run.
	result *training.Result

	// Set once the job is started.
	served *atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func New(ctx context.Context, cfg *config.Config, d dfpath.Dfpath, options ...Option) (*Server, error) {
	s := &Server{config: cfg, runID: uuid.NewString(), served: atomic.NewBool(false)}
	s.ctx, s.cancel = context.WithCancel(ctx)

	// Initialize Storage.
	s.dataDir = d.DataDir()
	s.storage = storage.New(s.dataDir)

	// Initialize object storage.
	if cfg.ObjectStorage.Enable {
		objectStorage, err := objectstorage.New(objectstorage.Options{
			Backend:   cfg.ObjectStorage.Name,
			Region:    cfg.ObjectStorage.Region,
			Endpoint:  cfg.ObjectStorage.Endpoint,
			AccessKey: cfg.ObjectStorage.AccessKey,
			SecretKey: cfg.ObjectStorage.SecretKey,
		})
		if err != nil {
			return nil, err
		}

		s.objectStorage = objectStorage
	}

	// Initialize metrics.
	if cfg.Metrics.Enable {
		s.metricsServer = metrics.New(&cfg.Metrics)
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Serve runs one training job and returns when it is finished.
func (s *Server) Serve() error {
	if s.served.Swap(true) {
		return dferrors.New(dfcodes.InvalidArgument, "server has already served")
	}

	// Started metrics server.
	if s.metricsServer != nil {
		go func() {
			logger.Infof("started metrics server at %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil {
				if err == http.ErrServerClosed {
					return
				}

				logger.Fatalf("metrics server closed unexpect: %s", err.Error())
			}
		}()
	}

	result, err := s.run(s.ctx)
	if err != nil {
		if errors.Is(err, dferrors.ErrMissingDatasetsDirectory) || errors.Is(err, dferrors.ErrNoUsableDatasets) {
			logger.Infof("nothing to train: %s", err.Error())
			return nil
		}

		return err
	}

	s.result = result
	return nil
}

// Result returns the result of the finished training run, nil before.
func (s *Server) Result() *training.Result {
	return s.result
}

// RunID returns the id of the training run.
func (s *Server) RunID() string {
	return s.runID
}

// Stop cancels the running job, stops the metrics server and removes
// evaluation records unless they are kept.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		// Stop metrics server.
		if s.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()

			if err := s.metricsServer.Shutdown(ctx); err != nil {
				logger.Errorf("metrics server failed to stop: %s", err.Error())
			} else {
				logger.Info("metrics server closed under request")
			}
		}

		if s.config.Storage.KeepRecords {
			return
		}

		// Clean storage file.
		if err := s.storage.Clear(); err != nil {
			logger.Errorf("clean storage file failed %s", err.Error())
		} else {
			logger.Info("clean storage file completed")
		}
	})
}

// run discovers the institutions, builds their test splits, trains on the
// class directories and evaluates on the test splits.
func (s *Server) run(ctx context.Context) (*training.Result, error) {
	cfg := s.config
	log := logger.WithRun(s.runID)
	classNames := cfg.Dataset.ClassNames
	nextRand := newRandSource(cfg.Training.Seed)

	maxExtractSize, err := units.RAMInBytes(cfg.Dataset.MaxExtractSize)
	if err != nil {
		return nil, dferrors.Wrap(dfcodes.InvalidArgument, err, "parse max extract size %s", cfg.Dataset.MaxExtractSize)
	}

	institutions, err := ingest.Discover(ctx, cfg.Dataset.Dir, ingest.WithMaxExtractSize(maxExtractSize))
	if err != nil {
		return nil, err
	}
	log.Infof("discovered %d institutions in %s", len(institutions), cfg.Dataset.Dir)

	trainTransform, err := transform.New(cfg.Transform.Size, cfg.Transform.Mean, cfg.Transform.Std,
		transform.WithHorizontalFlip(cfg.Transform.HorizontalFlip), transform.WithRand(nextRand()))
	if err != nil {
		return nil, err
	}

	testTransform, err := transform.New(cfg.Transform.Size, cfg.Transform.Mean, cfg.Transform.Std)
	if err != nil {
		return nil, err
	}

	newTrainDataset := func(exclude ...string) (*dataset.Dataset, error) {
		return dataset.New(classNames, ingest.ClassDirs(institutions, classNames), trainTransform,
			dataset.WithRand(nextRand()), dataset.WithExtensions(cfg.Dataset.Extensions...), dataset.WithExclude(exclude...))
	}

	// The train view reads only root/<class>, the test splits never leak into it
	// through enumeration.
	var trainDataset *dataset.Dataset
	if !cfg.Dataset.ExcludeTestFromTrain {
		if trainDataset, err = newTrainDataset(); err != nil {
			return nil, err
		}
	}

	builder := split.New(classNames, cfg.Dataset.TestQuota, split.WithRand(nextRand()),
		split.WithExtensions(cfg.Dataset.Extensions...), split.WithDirName(config.TestDirName), split.WithLockDir(s.dataDir))

	var testRoots, sampled []string
	for _, institution := range institutions {
		splitCtx, span := tracer.Start(ctx, config.SpanBuildSplit)
		span.SetAttributes(config.AttributeInstitution.String(institution.Name))
		testSplit, err := builder.BuildSplit(splitCtx, institution.Root)
		span.End()
		if err != nil {
			return nil, err
		}
		logger.WithInstitution(institution.Name, institution.Root).Infof("test split built at %s", testSplit.Dir)

		testRoots = append(testRoots, testSplit.Dir)
		for _, className := range classNames {
			sampled = append(sampled, testSplit.Paths(institution.Root, className)...)
		}
	}

	if cfg.Dataset.ExcludeTestFromTrain {
		if trainDataset, err = newTrainDataset(sampled...); err != nil {
			return nil, err
		}
	}

	testDataset, err := dataset.New(classNames, ingest.TestClassDirs(testRoots, classNames), testTransform,
		dataset.WithRand(nextRand()), dataset.WithExtensions(cfg.Dataset.Extensions...))
	if err != nil {
		return nil, err
	}

	reportDatasetSize(types.SplitTrain, trainDataset)
	reportDatasetSize(types.SplitTest, testDataset)

	newLoader := func(ds *dataset.Dataset) loader.Loader {
		return loader.New(ds, cfg.Loader.BatchSize, loader.WithShuffle(cfg.Loader.Shuffle), loader.WithWorkers(cfg.Loader.Workers),
			loader.WithPrefetch(cfg.Loader.Prefetch), loader.WithRand(nextRand()))
	}

	extractor, err := model.NewPooledExtractor(cfg.Transform.Size, cfg.Training.FeatureGrid)
	if err != nil {
		return nil, err
	}

	classifier, err := model.NewClassifier(extractor, len(classNames), nextRand())
	if err != nil {
		return nil, err
	}

	if cfg.Training.InitialCheckpoint != "" {
		if err := restore(classifier, cfg.Training.InitialCheckpoint, classNames); err != nil {
			return nil, err
		}
		log.Infof("head restored from %s", cfg.Training.InitialCheckpoint)
	}

	t := training.New(classifier, model.NewCrossEntropy(), model.NewAdam(cfg.Training.LearningRate),
		model.NewCheckpointer(cfg.Training.CheckpointPath, classNames, extractor), cfg.Training,
		training.WithStorage(s.storage), training.WithRunID(s.runID), training.WithProgressBar(cfg.Training.Progress))

	for _, ds := range []*dataset.Dataset{trainDataset, testDataset} {
		if _, err := dataset.NewBalancedSampler(ds).Next(); err != nil {
			return nil, err
		}
	}

	trainLoader, testLoader := newLoader(trainDataset), newLoader(testDataset)
	log.Infof("total number of training images %d, %d train batches, %d test batches",
		trainDataset.Len(), trainLoader.Len(), testLoader.Len())

	result, err := t.Train(ctx, trainLoader, testLoader)
	if err != nil {
		return nil, err
	}
	log.Infof("training finished after %d epochs and %d steps with accuracy %.4f, early stopped %t",
		result.Epochs, result.Steps, result.Accuracy, result.EarlyStopped)
	s.summarize()

	if s.objectStorage != nil {
		if err := s.upload(ctx, result.CheckpointPath); err != nil {
			metrics.UploadModelFailureCount.Inc()
			return nil, err
		}
		metrics.UploadModelCount.Inc()
	}

	return result, nil
}

// upload publishes the checkpoint under <prefix>/<runID>/<basename> and the
// evaluation records of the run next to it.
func (s *Server) upload(ctx context.Context, filename string) error {
	cfg := s.config.ObjectStorage
	var span trace.Span
	ctx, span = tracer.Start(ctx, config.SpanUpload)
	defer span.End()

	var limit int64
	if cfg.UploadRateLimit != "" {
		var err error
		if limit, err = units.RAMInBytes(cfg.UploadRateLimit); err != nil {
			return dferrors.Wrap(dfcodes.InvalidArgument, err, "parse upload rate limit %s", cfg.UploadRateLimit)
		}
	}

	exist, err := s.objectStorage.IsBucketExist(ctx, cfg.BucketName)
	if err != nil {
		return err
	}

	if !exist {
		if err := s.objectStorage.CreateBucket(ctx, cfg.BucketName); err != nil {
			return err
		}
	}

	key := path.Join(cfg.Prefix, s.runID, filepath.Base(filename))
	span.SetAttributes(config.AttributeObjectKey.String(key))
	if err := s.putObject(ctx, key, limit, func() (io.ReadCloser, error) {
		f, err := os.Open(filename)
		if err != nil {
			return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "open checkpoint %s", filename)
		}

		return f, nil
	}); err != nil {
		return err
	}

	rc, err := s.storage.OpenEvaluation(s.runID)
	if errors.Is(err, os.ErrNotExist) {
		logger.WithRun(s.runID).Info("no evaluation records to upload")
		return nil
	}
	if err != nil {
		return err
	}
	rc.Close()

	return s.putObject(ctx, path.Join(cfg.Prefix, s.runID, EvaluationObjectName), limit, func() (io.ReadCloser, error) {
		return s.storage.OpenEvaluation(s.runID)
	})
}

// putObject uploads the content returned by open under key with its digest,
// retrying failed or unverified attempts. A failing open is not retried.
func (s *Server) putObject(ctx context.Context, key string, limit int64, open func() (io.ReadCloser, error)) error {
	bucketName := s.config.ObjectStorage.BucketName
	log := logger.WithRun(s.runID)

	rc, err := open()
	if err != nil {
		return err
	}
	d, err := digest.HashReader(rc)
	rc.Close()
	if err != nil {
		return err
	}

	if _, _, err := retry.Run(ctx, uploadInitBackoff, uploadMaxBackoff, uploadMaxAttempts, func() (any, bool, error) {
		rc, err := open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()

		var r io.Reader = rc
		if limit > 0 {
			r = limitreader.NewReader(ctx, rc, limitreader.NewLimiter(limit))
		}

		if err := s.objectStorage.CreateObject(ctx, bucketName, key, d, r); err != nil {
			log.Warnf("upload %s/%s failed: %s", bucketName, key, err.Error())
			return nil, false, err
		}

		return nil, false, s.verify(ctx, bucketName, key, d)
	}); err != nil {
		return err
	}

	log.Infof("uploaded %s/%s with digest %s", bucketName, key, d)
	return nil
}

// verify checks the digest stored with the object, a mismatching object is removed.
func (s *Server) verify(ctx context.Context, bucketName, key, d string) error {
	log := logger.WithRun(s.runID)
	meta, ok, err := s.objectStorage.GetObjectMetadata(ctx, bucketName, key)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("object %s/%s not found after upload", bucketName, key)
	}

	if meta.Digest != d {
		if err := s.objectStorage.DeleteObject(ctx, bucketName, key); err != nil {
			log.Warnf("delete object %s/%s failed: %s", bucketName, key, err.Error())
		}

		return fmt.Errorf("object %s/%s has digest %s, expected %s", bucketName, key, meta.Digest, d)
	}

	log.Infof("object %s/%s of %s verified", bucketName, key, units.BytesSize(float64(meta.ContentLength)))
	return nil
}

// summarize logs the best evaluation recorded for the run.
func (s *Server) summarize() {
	log := logger.WithRun(s.runID)
	records, err := s.storage.ListEvaluation(s.runID)
	if err != nil {
		log.Warnf("list evaluation records failed: %s", err.Error())
		return
	}

	if len(records) == 0 {
		return
	}

	best := records[0]
	for _, record := range records[1:] {
		if record.Accuracy > best.Accuracy {
			best = record
		}
	}
	log.Infof("recorded %d evaluations, best accuracy %.4f at epoch %d step %d",
		len(records), best.Accuracy, best.Epoch, best.Step)
}

// restore loads the head parameters of the checkpoint into the classifier.
func restore(classifier *model.Classifier, filename string, classNames []string) error {
	ckpt, err := model.LoadCheckpoint(filename)
	if err != nil {
		return err
	}

	if !slices.Equal(ckpt.ClassNames, classNames) {
		return dferrors.Newf(dfcodes.InvalidArgument, "checkpoint classes %v differ from %v", ckpt.ClassNames, classNames)
	}

	extractor := classifier.Extractor()
	if ckpt.Size != extractor.Size() || ckpt.Grid != extractor.Grid() {
		return dferrors.Newf(dfcodes.InvalidArgument, "checkpoint extractor %d/%d differs from %d/%d",
			ckpt.Size, ckpt.Grid, extractor.Size(), extractor.Grid())
	}

	return ckpt.Restore(classifier)
}

// reportDatasetSize publishes the number of images per class of the split.
func reportDatasetSize(s types.Split, ds *dataset.Dataset) {
	for _, className := range ds.ClassNames() {
		metrics.DatasetSizeGauge.WithLabelValues(string(s), className).Set(float64(ds.Count(className)))
	}
}

// newRandSource returns a function returning independent random sources
// derived from seed, 0 seeds from the clock.
func newRandSource(seed int64) func() *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	seeds := rand.New(rand.NewSource(seed))
	return func() *rand.Rand {
		return rand.New(rand.NewSource(seeds.Int63()))
	}
}
