// Package freshet provides typed, named shared-memory channels for
// real-time dataflow pipelines spanning multiple OS processes.
//
// A channel carries one fixed-layout sample type from a single
// producer ([Sink]) to any number of consumers ([Source]). The
// channel lives in a named shared memory segment, so unrelated
// processes connect to it by name alone, with no sockets and no
// copies beyond the one each consumer takes for itself.
//
// Pipelines assemble themselves: every process touches the channels
// it consumes and binds the channels it produces, then retries
// connecting until all of its names resolve. Launch order between
// processes does not matter.
//
// The steady-state protocol is strict. A producer cycles
// Wait/write/Post; a consumer cycles Wait/Clone/Post. A consumer
// that skips Post stalls the producer, because a sample may not be
// overwritten until every consumer has released it. Shutdown flows
// through SignalEnd, which every blocked or future consumer Wait
// observes immediately as [StateEnd].
//
// [Combiner] composes the two endpoints into the common fan-in
// shape: N sources, one pure combination function, one sink.
package freshet
