// Package manifest loads declarative service descriptions written in CUE.
//
// A manifest declares bus interfaces (methods, signals, properties) and the
// objects that implement them:
//
//	package calc
//
//	interfaces: "com.example.Calc": {
//		methods: Add: {
//			args: [{name: "a", type: "i"}, {name: "b", type: "i"}]
//			returns: [{name: "sum", type: "i"}]
//			impl: "sum"
//		}
//		signals: Added: args: [{name: "sum", type: "i"}]
//		properties: Count: {type: "u", access: "read", value: 0}
//	}
//
//	objects: "/calc": interfaces: ["com.example.Calc"]
//
// Every method names a built-in behaviour through impl:
//
//	echo   reply with the call's arguments
//	sum    reply with the sum of integer arguments
//	const  reply with the values listed in reply
//	fail   reply with the error described by error
//	emit   emit signal with the call's arguments, then reply empty
package manifest
