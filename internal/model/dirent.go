package model

// linux_dirent64 头部的字节布局
/*
struct linux_dirent64 {
	ino64_t        d_ino;
	off64_t        d_off;
	unsigned short d_reclen;
	unsigned char  d_type;
	char           d_name[];
};
*/
const (
	DirentInoOffset    = 0
	DirentOffOffset    = 8
	DirentReclenOffset = 16
	DirentTypeOffset   = 18
	DirentNameOffset   = 19
)

// d_type 取值 (DT_*)
const (
	DTUnknown = 0
	DTDir     = 4
	DTReg     = 8
)
