package training

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// Dataset is the sample access contract the DataLoader batches over.
type Dataset interface {
	Len() int
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error)
}

// Batch holds a batched data tensor and its labels.
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// Sampler produces the index sequence a DataLoader traverses in one epoch.
type Sampler interface {
	Indices() []int
}

// sequentialSampler yields dataset indices in order, optionally reshuffled
// each epoch.
type sequentialSampler struct {
	length  int
	shuffle bool
	rng     *rand.Rand
}

func (s *sequentialSampler) Indices() []int {
	indices := make([]int, s.length)
	for i := range indices {
		indices[i] = i
	}
	if s.shuffle {
		s.rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})
	}
	return indices
}

// WeightedSampler draws with replacement from an index pool, so classes that
// appear more often in the pool are sampled proportionally more often. The
// pool typically comes from dataset.OversampleIndices.
type WeightedSampler struct {
	pool       []int
	numSamples int
	rng        *rand.Rand
}

// NewWeightedSampler creates a sampler over pool. numSamples is how many
// draws make up one epoch; zero means one draw per pool entry.
func NewWeightedSampler(pool []int, numSamples int, seed int64) (*WeightedSampler, error) {
	if len(pool) == 0 {
		return nil, errors.New("weighted sampler needs a non-empty index pool")
	}
	if numSamples <= 0 {
		numSamples = len(pool)
	}

	return &WeightedSampler{
		pool:       append([]int{}, pool...),
		numSamples: numSamples,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Indices draws numSamples indices from the pool with replacement.
func (s *WeightedSampler) Indices() []int {
	indices := make([]int, s.numSamples)
	for i := range indices {
		indices[i] = s.pool[s.rng.Intn(len(s.pool))]
	}
	return indices
}

// DataLoader provides batching and per-epoch index sampling over a Dataset.
// Batches are produced strictly in index order; the trainers consume them
// synchronously.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	sampler   Sampler
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a DataLoader with sequential (optionally shuffled)
// sampling. The shuffle order is deterministic for a fixed seed.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, seed int64) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}

	sampler := &sequentialSampler{
		length:  dataset.Len(),
		shuffle: shuffle,
		rng:     rand.New(rand.NewSource(seed)),
	}

	dl := &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		sampler:   sampler,
	}
	dl.indices = sampler.Indices()
	return dl, nil
}

// NewSampledDataLoader creates a DataLoader driven by a custom sampler, such
// as a WeightedSampler over an oversampling index pool.
func NewSampledDataLoader(dataset Dataset, batchSize int, sampler Sampler) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if sampler == nil {
		return nil, errors.New("sampler must not be nil")
	}

	dl := &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		sampler:   sampler,
	}
	dl.indices = sampler.Indices()
	return dl, nil
}

// Len returns the number of batches in an epoch.
func (dl *DataLoader) Len() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader and draws a fresh index order for the new epoch.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	dl.indices = dl.sampler.Indices()
}

// Next returns the next batch, or nil when the epoch is complete.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // end of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load batch")
	}

	return batch, nil
}

// HasNext reports whether more batches remain in the current epoch.
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch loads the samples behind indices and stacks them into batch
// tensors.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, errors.New("empty batch indices")
	}

	batchSize := len(indices)

	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load sample %d", indices[0])
	}

	dataShape := append([]int{batchSize}, firstData.Shape...)
	labelShape := append([]int{batchSize}, firstLabel.Shape...)

	batchData, err := tensor.Zeros(dataShape, firstData.DType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create batch data tensor")
	}

	batchLabels, err := tensor.Zeros(labelShape, firstLabel.DType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create batch labels tensor")
	}

	for i, idx := range indices {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}

		if err := copyInto(batchData, data, i); err != nil {
			return nil, errors.Wrapf(err, "failed to copy data for sample %d", i)
		}
		if err := copyInto(batchLabels, label, i); err != nil {
			return nil, errors.Wrapf(err, "failed to copy label for sample %d", i)
		}
	}

	return &Batch{
		Data:   batchData,
		Labels: batchLabels,
	}, nil
}

// copyInto copies a sample tensor into position batchIndex of a batch tensor.
func copyInto(batchTensor, sampleTensor *tensor.Tensor, batchIndex int) error {
	if batchTensor.DType != sampleTensor.DType {
		return errors.Errorf("dtype mismatch: batch %s, sample %s", batchTensor.DType, sampleTensor.DType)
	}

	sampleSize := sampleTensor.NumElems
	offset := batchIndex * sampleSize

	switch batchTensor.DType {
	case tensor.Float32:
		batchData := batchTensor.Data.([]float32)
		sampleData := sampleTensor.Data.([]float32)
		copy(batchData[offset:offset+sampleSize], sampleData)

	case tensor.Int32:
		batchData := batchTensor.Data.([]int32)
		sampleData := sampleTensor.Data.([]int32)
		copy(batchData[offset:offset+sampleSize], sampleData)

	default:
		return errors.Errorf("unsupported dtype for batch copying: %s", batchTensor.DType)
	}

	return nil
}

// Iterator returns a channel-based iterator for use in training loops. It
// resets the loader, so each call starts a fresh epoch.
func (dl *DataLoader) Iterator() <-chan *Batch {
	batchChan := make(chan *Batch, 1)

	go func() {
		defer close(batchChan)

		dl.Reset()

		for dl.HasNext() {
			batch, err := dl.Next()
			if err != nil || batch == nil {
				return
			}
			batchChan <- batch
		}
	}()

	return batchChan
}

// batchTargets flattens a label tensor of shape [batch] or [batch, 1] into a
// class index slice.
func batchTargets(labels *tensor.Tensor) ([]int32, error) {
	data, err := labels.Int32Data()
	if err != nil {
		return nil, errors.Wrap(err, "labels must be Int32")
	}
	return data, nil
}
