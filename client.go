package kvstore

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/batch"
	"github.com/ployz-labs/kvstore-client/internal/cluster"
	"github.com/ployz-labs/kvstore-client/internal/command"
	"github.com/ployz-labs/kvstore-client/internal/stream"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/task"
	"github.com/ployz-labs/kvstore-client/types"
)

// Client is the public handle on a cluster (spec.md §4.13): every
// operation below routes through the cluster's partition map and pool
// rather than addressing a server directly.
type Client struct {
	cluster *cluster.Cluster
}

// New connects to a cluster with the default client policy.
func New(ctx context.Context, seedHosts string) (*Client, error) {
	return NewWithPolicy(ctx, policy.DefaultClientPolicy(), seedHosts)
}

// NewWithPolicy connects to a cluster using cp, blocking until the cluster
// stabilizes or cp.StabilizationTimeout elapses (spec.md §4.6).
func NewWithPolicy(ctx context.Context, cp policy.ClientPolicy, seedHosts string) (*Client, error) {
	hosts, err := ParseHosts(seedHosts)
	if err != nil {
		return nil, err
	}

	clusterHosts := make([]cluster.Host, len(hosts))
	for i, h := range hosts {
		clusterHosts[i] = cluster.Host{Name: h.Name, Port: h.Port}
	}

	c, err := cluster.New(ctx, cp, clusterHosts)
	if err != nil {
		return nil, err
	}
	return &Client{cluster: c}, nil
}

// Close shuts down the tend loop and every node's connection pool.
func (c *Client) Close() { c.cluster.Close() }

// SetTracer installs tracer for future tend cycles, command retries, batch
// sub-batches, and stream node tasks. Optional: a nil (or never-called)
// tracer leaves every traced path as a plain no-op, matching how the
// teacher's cmd/ployz/main.go installs a TracerProvider only when tracing
// is configured.
func (c *Client) SetTracer(tracer trace.Tracer) {
	c.cluster.SetTracer(tracer)
}

// NodeInfo is a read-only snapshot of one cluster node's identity and
// health counters, for diagnostics (e.g. a CLI status command).
type NodeInfo struct {
	Name           string
	Address        string
	Active         bool
	Failures       int64
	ReferenceCount int64
}

// Nodes returns a snapshot of every currently active node in the cluster.
func (c *Client) Nodes() []NodeInfo {
	nodes := c.cluster.Nodes()
	out := make([]NodeInfo, len(nodes))
	for i, n := range nodes {
		out[i] = NodeInfo{
			Name:           n.Name(),
			Address:        n.Address(),
			Active:         n.IsActive(),
			Failures:       n.Failures(),
			ReferenceCount: n.ReferenceCount(),
		}
	}
	return out
}

func toCommandKey(k Key) command.Key {
	return command.Key{
		Namespace: k.Namespace,
		SetName:   k.SetName,
		Digest:    k.Digest(),
		UserKey:   k.UserKey,
	}
}

func fromCommandKey(ck command.Key) *Key {
	k := NewKeyFromDigest(ck.Namespace, ck.SetName, ck.Digest)
	if ck.UserKey != nil {
		k.UserKey = ck.UserKey
	}
	return &k
}

func recordFromResponse(key Key, resp *command.Response) *Record {
	return &Record{
		Key:        &key,
		Bins:       resp.Bins,
		Generation: resp.Generation,
		Expiration: resp.Expiration,
	}
}

// Get implements get(): bins selects which bins come back (spec.md §4.10).
// A missing key is a normal error, unlike Exists/Delete.
func (c *Client) Get(ctx context.Context, pol policy.ReadPolicy, key Key, bins types.Bins) (*Record, error) {
	cmd := &command.ReadCommand{Policy: pol, Key: toCommandKey(key), Bins: bins}
	if err := command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd); err != nil {
		return nil, err
	}
	return recordFromResponse(key, cmd.Result), nil
}

// Exists implements exists(): a missing key is reported as existed=false,
// never as an error (spec.md §8 scenario 6).
func (c *Client) Exists(ctx context.Context, pol policy.ReadPolicy, key Key) (bool, error) {
	cmd := &command.ExistsCommand{Policy: pol, Key: toCommandKey(key)}
	if err := command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd); err != nil {
		return false, err
	}
	return cmd.Existed, nil
}

// Put implements put(): writes every bin given, replacing any existing
// values for those bin names.
func (c *Client) Put(ctx context.Context, pol policy.WritePolicy, key Key, bins map[string]types.Value) error {
	return c.write(ctx, pol, key, types.OpWrite, bins)
}

// Add implements add(): numeric increment of every named bin.
func (c *Client) Add(ctx context.Context, pol policy.WritePolicy, key Key, bins map[string]types.Value) error {
	return c.write(ctx, pol, key, types.OpAdd, bins)
}

// Append implements append(): string/blob suffix concatenation.
func (c *Client) Append(ctx context.Context, pol policy.WritePolicy, key Key, bins map[string]types.Value) error {
	return c.write(ctx, pol, key, types.OpAppend, bins)
}

// Prepend implements prepend(): string/blob prefix concatenation.
func (c *Client) Prepend(ctx context.Context, pol policy.WritePolicy, key Key, bins map[string]types.Value) error {
	return c.write(ctx, pol, key, types.OpPrepend, bins)
}

func (c *Client) write(ctx context.Context, pol policy.WritePolicy, key Key, op types.OpType, bins map[string]types.Value) error {
	bv := make([]command.BinValue, 0, len(bins))
	for name, v := range bins {
		bv = append(bv, command.BinValue{Name: name, Value: v})
	}
	cmd := &command.WriteCommand{Policy: pol, Key: toCommandKey(key), OpType: op, Bins: bv}
	return command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd)
}

// Delete implements delete(): existed reports whether a record was
// actually removed; deleting an absent key is not an error (spec.md §8
// scenario 6).
func (c *Client) Delete(ctx context.Context, pol policy.WritePolicy, key Key) (bool, error) {
	cmd := &command.DeleteCommand{Policy: pol, Key: toCommandKey(key)}
	if err := command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd); err != nil {
		return false, err
	}
	return cmd.Existed, nil
}

// Touch implements touch(): refresh a record's expiration without
// altering its bins.
func (c *Client) Touch(ctx context.Context, pol policy.WritePolicy, key Key) error {
	cmd := &command.TouchCommand{Policy: pol, Key: toCommandKey(key)}
	return command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd)
}

// Op is one entry of an Operate() call.
type Op struct {
	Type    types.OpType
	BinName string
	Value   types.Value
}

// Operate implements operate(): an ordered mix of read/write bin ops in
// one round trip (spec.md §4.10).
func (c *Client) Operate(ctx context.Context, pol policy.WritePolicy, key Key, ops []Op) (*Record, error) {
	cmdOps := make([]command.Op, len(ops))
	for i, op := range ops {
		cmdOps[i] = command.Op{Type: op.Type, BinName: op.BinName, Value: op.Value}
	}
	cmd := &command.OperateCommand{Policy: pol, Key: toCommandKey(key), Ops: cmdOps}
	if err := command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd); err != nil {
		return nil, err
	}
	return recordFromResponse(key, cmd.Result), nil
}

// ExecuteUDF implements execute_udf(): packedArgs is already msgpack
// encoded by the caller's value codec (spec.md §1, out of scope here).
func (c *Client) ExecuteUDF(ctx context.Context, pol policy.WritePolicy, key Key, pkg, function string, packedArgs []byte) (types.Value, error) {
	cmd := &command.UDFCommand{Policy: pol, Key: toCommandKey(key), Package: pkg, Function: function, Args: packedArgs}
	if err := command.Execute(ctx, c.cluster, key.Namespace, key.PartitionID(), cmd); err != nil {
		return nil, err
	}
	return cmd.Result, nil
}

// BatchResult is one key's outcome from BatchGet, in the same order the
// keys were given (spec.md §8 scenario 4).
type BatchResult struct {
	Key     *Key
	Existed bool
	Bins    map[string]types.Value
	Err     error
}

// BatchGet implements batch_get(): fans requests out by owning node,
// reassembling results in input order regardless of response order or
// per-key failure (spec.md §4.8).
func (c *Client) BatchGet(ctx context.Context, namespace string, pol policy.BatchPolicy, keys []Key, bins types.Bins) ([]BatchResult, error) {
	ckeys := make([]command.Key, len(keys))
	for i, k := range keys {
		ckeys[i] = toCommandKey(k)
	}
	raw, err := batch.Get(ctx, c.cluster, namespace, pol, ckeys, bins)
	if err != nil {
		return nil, err
	}
	out := make([]BatchResult, len(raw))
	for i, r := range raw {
		out[i] = BatchResult{Key: fromCommandKey(r.Key), Existed: r.Existed, Bins: r.Bins, Err: r.Err}
	}
	return out, nil
}

// Recordset is the streaming handle returned by Scan, Query, ScanNode, and
// QueryNode.
type Recordset struct {
	inner *stream.Recordset
}

// Close cancels an in-progress scan/query (spec.md §5 cancellation).
func (rs *Recordset) Close() { rs.inner.Close() }

// Filter exports the current per-partition resume cursor. Pass the result
// as the filter argument to a later Scan/Query call to continue from
// here instead of restarting from every partition (spec.md §4.9's
// reusable PartitionFilter).
func (rs *Recordset) Filter() PartitionFilter {
	return toPartitionFilter(rs.inner.Filter())
}

// PartitionCursor is one partition's resume state: the
// {retry, digest, bval, node, sequence} record spec.md §4.9 describes.
type PartitionCursor struct {
	ID        uint16
	Done      bool
	Retry     bool
	Digest    [20]byte
	HasDigest bool
	BVal      uint64
	Node      string
	Sequence  uint32
}

// PartitionFilter is a scan/query resume cursor, reusable across separate
// Scan/Query calls to pick up exactly where a previous (possibly
// cancelled or max_records-truncated) call left off (spec.md §4.9).
type PartitionFilter struct {
	Partitions []PartitionCursor
}

func toPartitionFilter(sf stream.PartitionFilter) PartitionFilter {
	out := PartitionFilter{Partitions: make([]PartitionCursor, len(sf.Partitions))}
	for i, c := range sf.Partitions {
		out.Partitions[i] = PartitionCursor(c)
	}
	return out
}

func fromPartitionFilter(f *PartitionFilter) *stream.PartitionFilter {
	if f == nil {
		return nil
	}
	sf := stream.PartitionFilter{Partitions: make([]stream.PartitionCursor, len(f.Partitions))}
	for i, c := range f.Partitions {
		sf.Partitions[i] = stream.PartitionCursor(c)
	}
	return &sf
}

// Results streams decoded records until the scan/query completes, the
// caller closes the set, or an error terminates a producer.
func (rs *Recordset) Results() <-chan StreamResult {
	out := make(chan StreamResult)
	go func() {
		defer close(out)
		for r := range rs.inner.Results() {
			if r.Err != nil {
				out <- StreamResult{Err: r.Err}
				continue
			}
			out <- StreamResult{Record: &Record{
				Key:        fromCommandKey(r.Record.Key),
				Bins:       r.Record.Bins,
				Generation: r.Record.Generation,
				Expiration: r.Record.Expiration,
			}}
		}
	}()
	return out
}

// StreamResult is one entry from a Recordset.
type StreamResult struct {
	Record *Record
	Err    error
}

// Scan implements scan(): every record in namespace/setName (setName empty
// scans every set), streamed as it arrives (spec.md §4.9). filter, when
// non-nil, resumes a cursor previously exported via Recordset.Filter
// instead of starting over from every partition.
func (c *Client) Scan(ctx context.Context, pol policy.ScanPolicy, namespace, setName string, bins types.Bins, filter *PartitionFilter) *Recordset {
	return &Recordset{inner: stream.Run(ctx, c.cluster, namespace, setName, pol, bins, nil, fromPartitionFilter(filter))}
}

// ScanNode implements scan_node(): scan's single-node variant, reading
// only nodeName's master partitions instead of fanning out across the
// whole cluster (spec.md §4.10).
func (c *Client) ScanNode(ctx context.Context, pol policy.ScanPolicy, nodeName, namespace, setName string, bins types.Bins) *Recordset {
	return &Recordset{inner: stream.RunOnNode(ctx, c.cluster, namespace, setName, pol, bins, nil, nodeName)}
}

// Query implements query(): a scan scoped by a server-side filter
// expression (spec.md §4.9). filterExpr is opaque, pre-encoded bytes; the
// filter expression grammar itself is out of scope (spec.md §1). filter,
// when non-nil, resumes a cursor previously exported via Recordset.Filter.
func (c *Client) Query(ctx context.Context, pol policy.QueryPolicy, namespace, setName string, bins types.Bins, filterExpr []byte, filter *PartitionFilter) *Recordset {
	return &Recordset{inner: stream.Run(ctx, c.cluster, namespace, setName, pol.ScanPolicy, bins, filterExpr, fromPartitionFilter(filter))}
}

// QueryNode implements query_node(): query's single-node variant, reading
// only nodeName's master partitions (spec.md §4.10).
func (c *Client) QueryNode(ctx context.Context, pol policy.QueryPolicy, nodeName, namespace, setName string, bins types.Bins, filterExpr []byte) *Recordset {
	return &Recordset{inner: stream.RunOnNode(ctx, c.cluster, namespace, setName, pol.ScanPolicy, bins, filterExpr, nodeName)}
}

// Truncate implements truncate(): removes every record in namespace
// (setName empty) or namespace/setName older than beforeNanos (0 meaning
// "now"), by broadcasting an info command to every node (spec.md §4.11).
func (c *Client) Truncate(ctx context.Context, pol policy.InfoPolicy, namespace, setName string, beforeNanos int64) error {
	cmdStr := "truncate:namespace=" + namespace
	if setName != "" {
		cmdStr += ";set=" + setName
	}
	if beforeNanos > 0 {
		cmdStr += fmt.Sprintf(";lut=%d", beforeNanos)
	}
	return c.infoOnEveryNode(ctx, cmdStr)
}

func (c *Client) infoOnEveryNode(ctx context.Context, cmd string) error {
	var firstErr error
	for _, n := range c.cluster.Nodes() {
		resp, err := n.Info(ctx, cmd)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if v, ok := resp[cmd]; ok && v != "" && v != "ok" {
			if firstErr == nil {
				firstErr = fmt.Errorf("kvstore: node %s: %s: %s", n.Name(), cmd, v)
			}
		}
	}
	return firstErr
}

// info is a small escape hatch for task/index/UDF management commands that
// need a single node's raw info response (spec.md §4.11/§4.12).
func (c *Client) info(ctx context.Context, cmd string) (map[string]string, error) {
	n, err := c.cluster.RandomNode()
	if err != nil {
		return nil, err
	}
	return n.Info(ctx, cmd)
}

// IndexType selects the value type a secondary index is built over.
type IndexType int

const (
	IndexTypeNumeric IndexType = iota
	IndexTypeString
	IndexTypeGeo2DSphere
)

func (t IndexType) wireName() string {
	switch t {
	case IndexTypeString:
		return "STRING"
	case IndexTypeGeo2DSphere:
		return "GEO2DSPHERE"
	default:
		return "NUMERIC"
	}
}

// CreateIndex implements create_index(): issues the sindex-create info
// command and returns an IndexTask for polling its background build
// (spec.md §4.12, §4.13).
func (c *Client) CreateIndex(ctx context.Context, namespace, setName, indexName, binName string, indexType IndexType) (*task.IndexTask, error) {
	if indexName == "" {
		return nil, fmt.Errorf("create_index: empty index name: %w", aserrors.InvalidArgument)
	}
	cmd := fmt.Sprintf("sindex-create:ns=%s;indexname=%s;indextype=%s;set=%s;bin=%s",
		namespace, indexName, indexType.wireName(), setName, binName)
	if err := c.infoOnEveryNode(ctx, cmd); err != nil {
		return nil, err
	}
	return task.NewIndexTask(c.info, namespace, indexName), nil
}

// DropIndex implements drop_index(): issues the sindex-delete info command.
func (c *Client) DropIndex(ctx context.Context, namespace, setName, indexName string) error {
	if indexName == "" {
		return fmt.Errorf("drop_index: empty index name: %w", aserrors.InvalidArgument)
	}
	cmd := fmt.Sprintf("sindex-delete:ns=%s;indexname=%s;set=%s", namespace, indexName, setName)
	return c.infoOnEveryNode(ctx, cmd)
}

// RegisterUDF implements register_udf(): sends the Lua module's source and
// returns a RegisterTask for polling its propagation (spec.md §4.12, §4.13,
// the UDF registration RPC's own encoding is out of scope per spec.md §1 —
// content is base64-encoded into the udf-put info command).
func (c *Client) RegisterUDF(ctx context.Context, filename string, content []byte) (*task.RegisterTask, error) {
	if filename == "" {
		return nil, fmt.Errorf("register_udf: empty filename: %w", aserrors.InvalidArgument)
	}
	cmd := fmt.Sprintf("udf-put:filename=%s;content=%s;content-len=%d;udf-type=LUA",
		filename, base64.StdEncoding.EncodeToString(content), len(content))
	if _, err := c.info(ctx, cmd); err != nil {
		return nil, err
	}
	return task.NewRegisterTask(c.info, filename), nil
}

// RemoveUDF implements remove_udf().
func (c *Client) RemoveUDF(ctx context.Context, filename string) error {
	if filename == "" {
		return fmt.Errorf("remove_udf: empty filename: %w", aserrors.InvalidArgument)
	}
	_, err := c.info(ctx, "udf-remove:filename="+filename)
	return err
}
