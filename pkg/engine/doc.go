/*
Package engine assembles one server's subsystems — collection registry,
op queue per hosted collection, handle allocator, scheduler, SID cache,
flow engine, gossip RPC server, and performance counter ring — into a
single constructed value: one Config in, one struct holding every
subsystem out, with explicit Close/shutdown ordering instead of relying
on process exit.
*/
package engine
