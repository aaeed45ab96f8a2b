package client

var RouteOf = routeOf
