package service

var TruncateUTF8 = truncateUTF8
